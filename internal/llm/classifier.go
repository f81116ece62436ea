package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/felixkade/ledgersync/internal/common"
	"github.com/felixkade/ledgersync/internal/model"
	"github.com/felixkade/ledgersync/internal/service"
)

const classifierSystemPrompt = "You are a tax-aware financial transaction classifier. " +
	"Respond with a single JSON object and nothing else: no prose, no markdown."

// Config holds configuration for the AI classifier.
type Config struct {
	Provider        string
	APIKey          string
	Model           string
	Timeout         time.Duration
	RetryDelay      time.Duration
	Temperature     float64
	ReviewThreshold float64
	MaxTokens       int
	MaxRetries      int
}

// Result is a parsed, validated classification for one transaction.
type Result struct {
	CategoryName  string
	TaxCode       string
	Reasoning     string
	CategoryID    int64
	Confidence    float64
	TaxDeductible bool
	NeedsReview   bool
}

// Classifier assigns categories to transactions that no rule matched.
type Classifier struct {
	client          Client
	logger          *slog.Logger
	retryOpts       service.RetryOptions
	temperature     float64
	reviewThreshold float64
	maxTokens       int
}

// NewClassifier creates an AI classifier backed by the configured provider.
func NewClassifier(cfg Config, logger *slog.Logger) (*Classifier, error) {
	var client Client
	var err error

	switch strings.ToLower(cfg.Provider) {
	case "openai":
		client, err = newOpenAIClient(cfg)
	case "anthropic":
		client, err = newAnthropicClient(cfg)
	default:
		return nil, fmt.Errorf("%w: unsupported inference provider %q", common.ErrInvalidConfig, cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create inference client: %w", err)
	}

	retryOpts := service.RetryOptions{
		MaxAttempts: cfg.MaxRetries,
		Delay:       cfg.RetryDelay,
	}
	if retryOpts.MaxAttempts == 0 {
		retryOpts.MaxAttempts = 2
	}
	if retryOpts.Delay == 0 {
		retryOpts.Delay = time.Second
	}

	reviewThreshold := cfg.ReviewThreshold
	if reviewThreshold == 0 {
		reviewThreshold = 0.7
	}

	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 300
	}

	temperature := cfg.Temperature
	if temperature == 0 {
		temperature = 0.2
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Classifier{
		client:          client,
		logger:          logger.With("component", "classifier"),
		retryOpts:       retryOpts,
		reviewThreshold: reviewThreshold,
		maxTokens:       maxTokens,
		temperature:     temperature,
	}, nil
}

// NewClassifierWithClient creates a classifier over an existing client.
// Used by tests and anywhere a custom provider is already wired.
func NewClassifierWithClient(client Client, reviewThreshold float64, logger *slog.Logger) *Classifier {
	if reviewThreshold == 0 {
		reviewThreshold = 0.7
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{
		client:          client,
		logger:          logger.With("component", "classifier"),
		retryOpts:       service.RetryOptions{MaxAttempts: 2, Delay: time.Second},
		reviewThreshold: reviewThreshold,
		maxTokens:       300,
		temperature:     0.2,
	}
}

// Classify asks the inference service for a category. Unparseable output and
// unknown category names surface as errors wrapping ErrClassificationFailed;
// callers must treat those as non-fatal for the batch.
func (c *Classifier) Classify(ctx context.Context, txn *model.BankTransaction, categories []model.Category) (*Result, error) {
	if len(categories) == 0 {
		return nil, fmt.Errorf("%w: no categories available", common.ErrClassificationFailed)
	}

	prompt := c.buildPrompt(txn, categories)

	var payload *classificationPayload
	err := common.WithRetry(ctx, func() error {
		resp, err := c.client.Complete(ctx, CompletionRequest{
			System:      classifierSystemPrompt,
			Messages:    []Message{{Role: "user", Content: prompt}},
			MaxTokens:   c.maxTokens,
			Temperature: c.temperature,
		})
		if err != nil {
			c.logger.Warn("classification attempt failed",
				"error", err,
				"external_id", txn.ExternalID)
			return &common.RetryableError{Err: err, Retryable: true}
		}

		parsed, parseErr := parseClassification(resp.Content)
		if parseErr != nil {
			c.logger.Warn("unparseable classification response",
				"error", parseErr,
				"provider", resp.Provider,
				"external_id", txn.ExternalID)
			return &common.RetryableError{Err: parseErr, Retryable: true}
		}

		payload = parsed
		return nil
	}, c.retryOpts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrClassificationFailed, err)
	}

	category := findCategory(categories, payload.Category)
	if category == nil {
		return nil, fmt.Errorf("%w: model chose unknown category %q", common.ErrClassificationFailed, payload.Category)
	}

	result := &Result{
		CategoryID:    category.ID,
		CategoryName:  category.Name,
		TaxCode:       category.TaxCode,
		Reasoning:     payload.Reasoning,
		Confidence:    payload.Confidence,
		TaxDeductible: payload.TaxDeductible,
		NeedsReview:   payload.Confidence < c.reviewThreshold,
	}

	c.logger.Info("transaction classified",
		"external_id", txn.ExternalID,
		"category", category.Name,
		"confidence", payload.Confidence,
		"needs_review", result.NeedsReview)

	return result, nil
}

// buildPrompt creates the classification prompt: the transaction details and
// the enumerated category list with tax mappings and deductibility defaults.
func (c *Classifier) buildPrompt(txn *model.BankTransaction, categories []model.Category) string {
	var sb strings.Builder

	sb.WriteString("Classify this bank transaction into exactly one of the available categories.\n\n")
	sb.WriteString("Transaction:\n")
	fmt.Fprintf(&sb, "  Description: %s\n", txn.Description)
	if txn.MerchantName != "" {
		fmt.Fprintf(&sb, "  Merchant: %s\n", txn.MerchantName)
	}
	fmt.Fprintf(&sb, "  Amount: %.2f\n", txn.Amount)
	fmt.Fprintf(&sb, "  Direction: %s\n", txn.Direction)
	fmt.Fprintf(&sb, "  Date: %s\n", txn.Date.Format("2006-01-02"))

	sb.WriteString("\nAvailable categories:\n")
	for _, cat := range categories {
		fmt.Fprintf(&sb, "  - %s (%s, tax code %s, default deductible %d%%)\n",
			cat.Name, cat.Type, cat.TaxCode, cat.DefaultDeductiblePercent)
	}

	sb.WriteString(`
Respond with one JSON object:
{"category": "<exact category name from the list>", "taxCode": "<that category's tax code>", "isTaxDeductible": <bool>, "confidence": <0.0-1.0>, "reasoning": "<one short sentence>"}`)

	return sb.String()
}

func findCategory(categories []model.Category, name string) *model.Category {
	for i := range categories {
		if strings.EqualFold(categories[i].Name, strings.TrimSpace(name)) {
			return &categories[i]
		}
	}
	return nil
}
