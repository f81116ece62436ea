// Package ofx imports OFX/QFX statement files as bank transactions, for
// accounts that cannot be reached through the aggregator.
package ofx

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"

	"github.com/aclindsa/ofxgo"

	"github.com/felixkade/ledgersync/internal/model"
)

// Parser reads OFX/QFX statement files.
type Parser struct {
	logger *slog.Logger
}

// NewParser creates an OFX parser.
func NewParser(logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{logger: logger}
}

var (
	severityRegex = regexp.MustCompile(`(?i)<SEVERITY>(Info|Warn|Error)</SEVERITY>`)
	// SGML-style files from some banks drop the closing bracket on tags
	// that sit alone on a line.
	tagFixRegex = regexp.MustCompile(`(?m)^(\s*<[A-Z][A-Z0-9._]*[A-Z0-9])$`)
)

// preprocess fixes common formatting defects before handing the file to the
// OFX parser.
func preprocess(content string) string {
	content = strings.TrimLeft(content, " \t\r\n")
	content = severityRegex.ReplaceAllStringFunc(content, strings.ToUpper)
	content = tagFixRegex.ReplaceAllString(content, "$1>")
	return content
}

// ParseFile parses a statement file and returns the contained transactions
// converted to the domain model. The FITID becomes the external ID, so
// re-importing the same file is deduplicated by the usual insert path.
func (p *Parser) ParseFile(_ context.Context, connectionID int64, reader io.Reader) ([]model.BankTransaction, error) {
	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read OFX file: %w", err)
	}

	resp, err := ofxgo.ParseResponse(strings.NewReader(preprocess(string(content))))
	if err != nil {
		return nil, fmt.Errorf("failed to parse OFX file: %w", err)
	}

	var transactions []model.BankTransaction
	var statements int

	for _, msg := range resp.Bank {
		stmt, ok := msg.(*ofxgo.StatementResponse)
		if !ok || stmt.BankTranList == nil {
			continue
		}
		statements++
		accountID := string(stmt.BankAcctFrom.AcctID)
		for _, ofxTxn := range stmt.BankTranList.Transactions {
			transactions = append(transactions, convertTransaction(ofxTxn, connectionID, accountID))
		}
	}

	for _, msg := range resp.CreditCard {
		stmt, ok := msg.(*ofxgo.CCStatementResponse)
		if !ok || stmt.BankTranList == nil {
			continue
		}
		statements++
		accountID := string(stmt.CCAcctFrom.AcctID)
		for _, ofxTxn := range stmt.BankTranList.Transactions {
			transactions = append(transactions, convertTransaction(ofxTxn, connectionID, accountID))
		}
	}

	p.logger.Info("parsed OFX file",
		"statements", statements,
		"transactions", len(transactions))

	return transactions, nil
}

// ListAccounts returns the unique account IDs present in a statement file.
func (p *Parser) ListAccounts(_ context.Context, reader io.Reader) ([]string, error) {
	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read OFX file: %w", err)
	}

	resp, err := ofxgo.ParseResponse(strings.NewReader(preprocess(string(content))))
	if err != nil {
		return nil, fmt.Errorf("failed to parse OFX file: %w", err)
	}

	seen := make(map[string]bool)
	var accounts []string
	record := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			accounts = append(accounts, id)
		}
	}

	for _, msg := range resp.Bank {
		if stmt, ok := msg.(*ofxgo.StatementResponse); ok {
			record(string(stmt.BankAcctFrom.AcctID))
		}
	}
	for _, msg := range resp.CreditCard {
		if stmt, ok := msg.(*ofxgo.CCStatementResponse); ok {
			record(string(stmt.CCAcctFrom.AcctID))
		}
	}
	return accounts, nil
}

// convertTransaction maps one OFX transaction to the domain model. OFX
// amounts are signed the same way the aggregator signs them: negative for
// money out.
func convertTransaction(ofxTxn ofxgo.Transaction, connectionID int64, accountID string) model.BankTransaction {
	amount, _ := ofxTxn.TrnAmt.Float64()

	direction := model.DirectionCredit
	if amount < 0 {
		direction = model.DirectionDebit
	}

	return model.BankTransaction{
		ConnectionID: connectionID,
		AccountID:    accountID,
		ExternalID:   string(ofxTxn.FiTID),
		Date:         ofxTxn.DtPosted.Time,
		Description:  string(ofxTxn.Name),
		MerchantName: merchantName(ofxTxn),
		Amount:       amount,
		Direction:    direction,
	}
}

// merchantName extracts the cleanest merchant identifier available.
func merchantName(txn ofxgo.Transaction) string {
	if txn.Payee != nil && txn.Payee.Name != "" {
		return string(txn.Payee.Name)
	}

	name := strings.TrimSpace(string(txn.Name))
	if txn.Memo != "" && isGenericDescription(name) {
		name = strings.TrimSpace(string(txn.Memo))
	}

	for _, prefix := range []string{
		"POS PURCHASE ",
		"DEBIT CARD PURCHASE ",
		"CARD PAYMENT TO ",
		"DIRECT DEBIT ",
		"FASTER PAYMENT TO ",
		"VISA PURCHASE ",
	} {
		if strings.HasPrefix(strings.ToUpper(name), prefix) {
			name = name[len(prefix):]
			break
		}
	}
	return strings.TrimSpace(name)
}

func isGenericDescription(name string) bool {
	switch strings.ToUpper(name) {
	case "DEBIT", "CREDIT", "PURCHASE", "PAYMENT", "POS TRANSACTION", "CARD PURCHASE":
		return true
	}
	return false
}
