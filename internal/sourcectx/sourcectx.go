// Package sourcectx fetches the source code surrounding a failing stack
// frame from Azure DevOps, for inclusion in enrichment prompts.
package sourcectx

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/linnemanlabs/go-core/log"
)

const (
	httpTimeout = 15 * time.Second

	// contextLines is the window of code returned around the failing line.
	contextLines = 15

	maxFileBytes = 1 << 20 // 1MB
)

// frameRe matches compiler-style stack frames like
// "GeneDoc/Models/GenerateDocument.cs:line 4340".
var frameRe = regexp.MustCompile(`(?i)([a-zA-Z0-9_\-/\\]+\.(?:cs|ts|js|java|go)):line\s(\d+)`)

// Fetcher resolves stack frames against an Azure DevOps git repository.
// With no PAT configured it reports no context for every trace.
type Fetcher struct {
	pat     string
	orgURL  string
	project string
	repo    string
	client  *http.Client
	logger  log.Logger
}

// New creates a Fetcher. orgURL is the organization base URL, e.g.
// "https://dev.azure.com/acme".
func New(pat, orgURL, project, repo string, logger log.Logger) *Fetcher {
	if logger == nil {
		logger = log.Nop()
	}
	return &Fetcher{
		pat:     pat,
		orgURL:  strings.TrimRight(orgURL, "/"),
		project: project,
		repo:    repo,
		client:  &http.Client{Timeout: httpTimeout},
		logger:  logger,
	}
}

// SurroundingCode extracts a file and line from the stack trace and
// returns the code window around it, with the failing line marked.
func (f *Fetcher) SurroundingCode(ctx context.Context, stackTrace string) (string, bool) {
	if stackTrace == "" || f.pat == "" {
		return "", false
	}

	m := frameRe.FindStringSubmatch(stackTrace)
	if m == nil {
		return "", false
	}

	rawPath := m[1]
	lineNumber, err := strconv.Atoi(m[2])
	if err != nil || lineNumber < 1 {
		return "", false
	}

	// Windows build paths come in as D:\a\1\s\Project\File.cs; strip the
	// agent prefix and convert to repository-relative form.
	path := strings.ReplaceAll(rawPath, `\`, "/")
	if i := strings.LastIndex(path, "/s/"); i >= 0 {
		path = path[i+len("/s/"):]
	}

	content, err := f.fetchFile(ctx, path)
	if err != nil {
		f.logger.Warn(ctx, "source fetch failed", "path", path, "error", err)
		return "", false
	}

	return window(content, lineNumber), true
}

// fetchFile reads a file from the Azure DevOps items API.
func (f *Fetcher) fetchFile(ctx context.Context, path string) (string, error) {
	u := fmt.Sprintf("%s/%s/_apis/git/repositories/%s/items?path=%s&api-version=7.0",
		f.orgURL, url.PathEscape(f.project), url.PathEscape(f.repo), url.QueryEscape("/"+path))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "text/plain")
	req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(":"+f.pat)))

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("items API returned %d for %s", resp.StatusCode, path)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFileBytes))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	return string(body), nil
}

// window renders contextLines lines either side of the failing line, with
// a ">>" marker on the line itself.
func window(content string, lineNumber int) string {
	lines := strings.Split(content, "\n")

	start := lineNumber - 1 - contextLines
	if start < 0 {
		start = 0
	}
	end := lineNumber - 1 + contextLines
	if end > len(lines)-1 {
		end = len(lines) - 1
	}

	var b strings.Builder
	for i := start; i <= end; i++ {
		marker := "   "
		if i == lineNumber-1 {
			marker = ">> "
		}
		fmt.Fprintf(&b, "%s%d: %s\n", marker, i+1, lines[i])
	}
	return strings.TrimRight(b.String(), "\n")
}
