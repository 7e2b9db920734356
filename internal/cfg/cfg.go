package cfg

import (
	"errors"
	"flag"
	"fmt"
)

// Config adds gatekeeper-specific configuration fields to the
// common cfg.Registerable and cfg.Validatable interfaces
type Config struct {
	DrainSeconds          int
	ShutdownBudgetSeconds int
	APIPort               int
	APIKey                string
	DatabaseURL           string
	ClaudeAPIKey          string
	ClaudeModel           string
	SlackWebhookURL       string
	AzureDevOpsPAT        string
	AzureDevOpsOrgURL     string
	AzureDevOpsProject    string
	AzureDevOpsRepo       string
}

// RegisterFlags binds Config fields to the given FlagSet with defaults inline
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.DrainSeconds, "drain-seconds", 60, "seconds to wait for in-flight requests to drain before shutdown (1..300)")
	fs.IntVar(&c.ShutdownBudgetSeconds, "shutdown-budget-seconds", 90, "total seconds for component shutdown after drain (1..300)")
	fs.IntVar(&c.APIPort, "http-port", 8080, "API listen TCP port (1..65535)")
	fs.StringVar(&c.APIKey, "api-key", "", "shared key clients must present in "+apiKeyHeader+" on ingest endpoints")
	fs.StringVar(&c.DatabaseURL, "database-url", "", "PostgreSQL connection URL (empty = in-memory store)")
	fs.StringVar(&c.ClaudeAPIKey, "claude-api-key", "", "API key for the Claude enrichment provider (empty = enrichment disabled)")
	fs.StringVar(&c.ClaudeModel, "claude-model", "claude-sonnet-4-20250514", "Claude model to use for enrichment")
	fs.StringVar(&c.SlackWebhookURL, "slack-webhook-url", "", "Slack webhook URL for incident notifications")
	fs.StringVar(&c.AzureDevOpsPAT, "azure-devops-pat", "", "Azure DevOps PAT for fetching source context (empty = disabled)")
	fs.StringVar(&c.AzureDevOpsOrgURL, "azure-devops-org-url", "", "Azure DevOps organization URL, e.g. https://dev.azure.com/acme")
	fs.StringVar(&c.AzureDevOpsProject, "azure-devops-project", "", "Azure DevOps project holding the source repositories")
	fs.StringVar(&c.AzureDevOpsRepo, "azure-devops-repo", "", "Azure DevOps repository to resolve stack frames against")
}

const apiKeyHeader = "X-Api-Key"

// Validate checks all configuration fields for correctness.
// It returns an error if any field is invalid, or nil if all fields are valid.
func (c *Config) Validate() error {
	var errs []error

	// Drain and shutdown budgets
	if c.DrainSeconds <= 0 || c.DrainSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid DRAIN_SECONDS %d (must be 1..300)", c.DrainSeconds))
	}
	if c.ShutdownBudgetSeconds <= 0 || c.ShutdownBudgetSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid SHUTDOWN_BUDGET_SECONDS %d (must be 1..300)", c.ShutdownBudgetSeconds))
	}

	// Shutdown budget must be greater than drain time
	if c.ShutdownBudgetSeconds <= c.DrainSeconds {
		errs = append(errs, fmt.Errorf("SHUTDOWN_BUDGET_SECONDS %d must be greater than DRAIN_SECONDS %d", c.ShutdownBudgetSeconds, c.DrainSeconds))
	}

	// API port must be valid TCP port number
	if c.APIPort <= 0 || c.APIPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.APIPort))
	}

	// Ingest endpoints mutate state and must always be keyed
	if c.APIKey == "" {
		errs = append(errs, errors.New("API_KEY is required"))
	}

	// Model only matters once a key enables the enrichment provider
	if c.ClaudeAPIKey != "" && c.ClaudeModel == "" {
		errs = append(errs, errors.New("CLAUDE_MODEL is required when CLAUDE_API_KEY is set"))
	}

	// Source context needs the full Azure DevOps coordinate set
	if c.AzureDevOpsPAT != "" {
		if c.AzureDevOpsOrgURL == "" || c.AzureDevOpsProject == "" || c.AzureDevOpsRepo == "" {
			errs = append(errs, errors.New("AZURE_DEVOPS_ORG_URL, AZURE_DEVOPS_PROJECT and AZURE_DEVOPS_REPO are required when AZURE_DEVOPS_PAT is set"))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
