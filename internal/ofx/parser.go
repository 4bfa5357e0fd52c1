// Package ofx turns OFX/QFX statements into normalized transactions for one bank
// account.
package ofx

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/aclindsa/ofxgo"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Veraticus/recurrent/internal/model"
)

var (
	severityPattern = regexp.MustCompile(`(?i)<SEVERITY>(Info|Warn|Error)</SEVERITY>`)
	// An SGML opening tag alone on its line with the closing bracket missing.
	unclosedTagPattern = regexp.MustCompile(`(?m)^(\s*<[A-Z][A-Z0-9._]*[A-Z0-9])$`)

	// transactionNamespace scopes generated transaction IDs.
	transactionNamespace = uuid.MustParse("6f1c1d0e-5b7a-4f43-9a55-2f3e0b7f4c21")
)

var merchantPrefixes = []string{
	"POS PURCHASE ",
	"PURCHASE AUTHORIZED ON ",
	"DEBIT CARD PURCHASE ",
	"ACH DEBIT ",
	"CHECK CARD ",
	"VISA PURCHASE ",
	"MC PURCHASE ",
	"DEBIT PURCHASE ",
}

var genericDescriptions = map[string]struct{}{
	"DEBIT":           {},
	"CREDIT":          {},
	"PURCHASE":        {},
	"PAYMENT":         {},
	"POS TRANSACTION": {},
	"CARD PURCHASE":   {},
}

// Statement is the normalized content of one OFX file.
type Statement struct {
	BalanceAsOf   time.Time
	LedgerBalance *decimal.Decimal // Latest ledger balance reported, if any
	Accounts      []string         // Institution account numbers found in the file
	Transactions  []model.Transaction
}

// Parser reads OFX/QFX files.
type Parser struct{}

// NewParser creates a new OFX parser.
func NewParser() *Parser {
	return &Parser{}
}

// ParseFile reads every bank and credit card statement in r and assigns the
// transactions to bankAccountID. Amounts keep their OFX sign: debits are negative.
func (p *Parser) ParseFile(ctx context.Context, r io.Reader, bankAccountID string) (*Statement, error) {
	if strings.TrimSpace(bankAccountID) == "" {
		return nil, fmt.Errorf("bank account id is required")
	}

	resp, err := p.parse(r)
	if err != nil {
		return nil, err
	}

	stmt := &Statement{}
	accounts := make(map[string]struct{})
	add := func(acctID ofxgo.String, list *ofxgo.TransactionList, balance ofxgo.Amount, asOf ofxgo.Date) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if acctID != "" {
			accounts[string(acctID)] = struct{}{}
		}
		if list != nil {
			for _, ofxTx := range list.Transactions {
				txn, err := p.convertTransaction(ofxTx, bankAccountID)
				if err != nil {
					slog.Warn("Skipping unreadable OFX transaction",
						"fitid", string(ofxTx.FiTID),
						"error", err)
					continue
				}
				stmt.Transactions = append(stmt.Transactions, txn)
			}
		}
		if !asOf.IsZero() && (stmt.LedgerBalance == nil || asOf.After(stmt.BalanceAsOf)) {
			amount, err := toDecimal(balance)
			if err == nil {
				stmt.LedgerBalance = &amount
				stmt.BalanceAsOf = asOf.Time
			}
		}
		return nil
	}

	for _, msg := range resp.Bank {
		if s, ok := msg.(*ofxgo.StatementResponse); ok {
			if err := add(s.BankAcctFrom.AcctID, s.BankTranList, s.BalAmt, s.DtAsOf); err != nil {
				return nil, err
			}
		}
	}
	for _, msg := range resp.CreditCard {
		if s, ok := msg.(*ofxgo.CCStatementResponse); ok {
			if err := add(s.CCAcctFrom.AcctID, s.BankTranList, s.BalAmt, s.DtAsOf); err != nil {
				return nil, err
			}
		}
	}

	for acct := range accounts {
		stmt.Accounts = append(stmt.Accounts, acct)
	}
	sort.Strings(stmt.Accounts)
	sort.SliceStable(stmt.Transactions, func(i, j int) bool {
		return stmt.Transactions[i].Date.Before(stmt.Transactions[j].Date)
	})

	slog.Info("Parsed OFX file",
		"bank_account_id", bankAccountID,
		"transactions", len(stmt.Transactions),
		"statements", len(resp.Bank)+len(resp.CreditCard))

	return stmt, nil
}

func (p *Parser) parse(r io.Reader) (*ofxgo.Response, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read OFX file: %w", err)
	}

	resp, err := ofxgo.ParseResponse(strings.NewReader(preprocess(string(content))))
	if err != nil {
		return nil, fmt.Errorf("failed to parse OFX file: %w", err)
	}
	return resp, nil
}

// preprocess repairs formatting that real institutions emit but ofxgo rejects.
func preprocess(content string) string {
	content = strings.TrimLeft(content, " \t\r\n")
	content = severityPattern.ReplaceAllStringFunc(content, strings.ToUpper)
	return unclosedTagPattern.ReplaceAllString(content, "$1>")
}

func (p *Parser) convertTransaction(ofxTx ofxgo.Transaction, bankAccountID string) (model.Transaction, error) {
	amount, err := toDecimal(ofxTx.TrnAmt)
	if err != nil {
		return model.Transaction{}, err
	}

	txn := model.Transaction{
		BankAccountID: bankAccountID,
		Date:          ofxTx.DtPosted.Time,
		Name:          strings.TrimSpace(string(ofxTx.Name)),
		MerchantName:  extractMerchantName(ofxTx),
		Amount:        amount,
	}
	if txn.Name == "" {
		txn.Name = txn.MerchantName
	}
	txn.Hash = txn.GenerateHash()

	// FITIDs are only unique per institution account, so IDs are derived per bank
	// account. Without a FITID the content hash identifies the transaction.
	key := string(ofxTx.FiTID)
	if key == "" {
		key = txn.Hash
	}
	txn.ID = uuid.NewSHA1(transactionNamespace, []byte(bankAccountID+"\x00"+key)).String()

	return txn, nil
}

func toDecimal(amount ofxgo.Amount) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(amount.Rat.FloatString(model.MinorUnitExponent))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %s: %w", amount.Rat.String(), err)
	}
	return d, nil
}

// extractMerchantName prefers PAYEE, then NAME, falling back to MEMO when NAME is a
// generic description, and strips card-network prefixes and leading MM/DD dates.
func extractMerchantName(tx ofxgo.Transaction) string {
	if tx.Payee != nil && tx.Payee.Name != "" {
		return strings.TrimSpace(string(tx.Payee.Name))
	}

	name := strings.TrimSpace(string(tx.Name))
	if _, generic := genericDescriptions[strings.ToUpper(name)]; generic && tx.Memo != "" {
		name = strings.TrimSpace(string(tx.Memo))
	}

	upper := strings.ToUpper(name)
	for _, prefix := range merchantPrefixes {
		if strings.HasPrefix(upper, prefix) {
			name = name[len(prefix):]
			break
		}
	}

	if len(name) > 5 && name[2] == '/' && name[5] == ' ' {
		name = strings.TrimSpace(name[6:])
	}
	return name
}
