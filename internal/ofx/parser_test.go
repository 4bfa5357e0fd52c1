package ofx

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/aclindsa/ofxgo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Sample OFX data for testing.
const sampleBankOFX = `OFXHEADER:100
DATA:OFXSGML
VERSION:102
SECURITY:NONE
ENCODING:USASCII
CHARSET:1252
COMPRESSION:NONE
OLDFILEUID:NONE
NEWFILEUID:NONE

<OFX>
<SIGNONMSGSRSV1>
<SONRS>
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<DTSERVER>20240315120000[0:GMT]
<LANGUAGE>ENG
</SONRS>
</SIGNONMSGSRSV1>
<BANKMSGSRSV1>
<STMTTRNRS>
<TRNUID>1
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<STMTRS>
<CURDEF>USD
<BANKACCTFROM>
<BANKID>123456789
<ACCTID>1234567890
<ACCTTYPE>CHECKING
</BANKACCTFROM>
<BANKTRANLIST>
<DTSTART>20240101120000[0:GMT]
<DTEND>20240131120000[0:GMT]
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240115120000[0:GMT]
<TRNAMT>-25.50
<FITID>2024011501
<NAME>STARBUCKS STORE #1234
</STMTTRN>
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240120120000[0:GMT]
<TRNAMT>-125.00
<FITID>2024012001
<NAME>Whole Foods Market
</STMTTRN>
<STMTTRN>
<TRNTYPE>CHECK
<DTPOSTED>20240125120000[0:GMT]
<TRNAMT>-500.00
<FITID>2024012501
<CHECKNUM>1234
<NAME>CHECK #1234
</STMTTRN>
</BANKTRANLIST>
<LEDGERBAL>
<BALAMT>1000.00
<DTASOF>20240131120000[0:GMT]
</LEDGERBAL>
</STMTRS>
</STMTTRNRS>
</BANKMSGSRSV1>
</OFX>`

const sampleCreditCardOFX = `OFXHEADER:100
DATA:OFXSGML
VERSION:102
SECURITY:NONE
ENCODING:USASCII
CHARSET:1252
COMPRESSION:NONE
OLDFILEUID:NONE
NEWFILEUID:NONE

<OFX>
<SIGNONMSGSRSV1>
<SONRS>
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<DTSERVER>20240315120000[0:GMT]
<LANGUAGE>ENG
</SONRS>
</SIGNONMSGSRSV1>
<CREDITCARDMSGSRSV1>
<CCSTMTTRNRS>
<TRNUID>1
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<CCSTMTRS>
<CURDEF>USD
<CCACCTFROM>
<ACCTID>4111111111111111
</CCACCTFROM>
<BANKTRANLIST>
<DTSTART>20240101120000[0:GMT]
<DTEND>20240131120000[0:GMT]
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240110120000[0:GMT]
<TRNAMT>-45.99
<FITID>CC2024011001
<NAME>AMAZON.COM*RT4Y7HG2
</STMTTRN>
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240115120000[0:GMT]
<TRNAMT>-15.00
<FITID>CC2024011501
<NAME>NETFLIX.COM
</STMTTRN>
</BANKTRANLIST>
<LEDGERBAL>
<BALAMT>-500.00
<DTASOF>20240131120000[0:GMT]
</LEDGERBAL>
</CCSTMTRS>
</CCSTMTTRNRS>
</CREDITCARDMSGSRSV1>
</OFX>`

const accountID = "acct-checking"

func TestParseFile(t *testing.T) {
	tests := []struct {
		name          string
		ofxData       string
		expectedCount int
		expectedError bool
	}{
		{name: "bank statement", ofxData: sampleBankOFX, expectedCount: 3},
		{name: "credit card statement", ofxData: sampleCreditCardOFX, expectedCount: 2},
		{name: "leading blank lines", ofxData: "\n\n  " + sampleBankOFX, expectedCount: 3},
		{name: "invalid data", ofxData: "not valid OFX", expectedError: true},
		{name: "empty file", ofxData: "", expectedError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stmt, err := NewParser().ParseFile(context.Background(), strings.NewReader(tt.ofxData), accountID)
			if tt.expectedError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, stmt.Transactions, tt.expectedCount)
		})
	}
}

func TestParseFile_BankStatement(t *testing.T) {
	stmt, err := NewParser().ParseFile(context.Background(), strings.NewReader(sampleBankOFX), accountID)
	require.NoError(t, err)
	require.Len(t, stmt.Transactions, 3)

	assert.Equal(t, []string{"1234567890"}, stmt.Accounts)
	require.NotNil(t, stmt.LedgerBalance)
	assert.True(t, stmt.LedgerBalance.Equal(decimal.RequireFromString("1000.00")))
	assert.Equal(t, 2024, stmt.BalanceAsOf.Year())

	starbucks := stmt.Transactions[0]
	assert.Equal(t, accountID, starbucks.BankAccountID)
	assert.Equal(t, "STARBUCKS STORE #1234", starbucks.Name)
	assert.Equal(t, "STARBUCKS STORE #1234", starbucks.MerchantName)
	assert.True(t, starbucks.Amount.Equal(decimal.RequireFromString("-25.50")), "amount %s", starbucks.Amount)
	assert.Equal(t, time.January, starbucks.Date.Month())
	assert.Equal(t, 15, starbucks.Date.Day())
	assert.NotEmpty(t, starbucks.ID)
	assert.Equal(t, starbucks.GenerateHash(), starbucks.Hash)

	assert.True(t, stmt.Transactions[1].Amount.Equal(decimal.RequireFromString("-125")))
	assert.Equal(t, "CHECK #1234", stmt.Transactions[2].Name)
}

func TestParseFile_CreditCardStatement(t *testing.T) {
	stmt, err := NewParser().ParseFile(context.Background(), strings.NewReader(sampleCreditCardOFX), accountID)
	require.NoError(t, err)
	require.Len(t, stmt.Transactions, 2)

	assert.Equal(t, []string{"4111111111111111"}, stmt.Accounts)
	require.NotNil(t, stmt.LedgerBalance)
	assert.True(t, stmt.LedgerBalance.Equal(decimal.RequireFromString("-500")))

	assert.Equal(t, "AMAZON.COM*RT4Y7HG2", stmt.Transactions[0].Name)
	assert.True(t, stmt.Transactions[0].Amount.Equal(decimal.RequireFromString("-45.99")))
	assert.Equal(t, "NETFLIX.COM", stmt.Transactions[1].MerchantName)
}

func TestParseFile_StableIDs(t *testing.T) {
	parser := NewParser()
	first, err := parser.ParseFile(context.Background(), strings.NewReader(sampleBankOFX), accountID)
	require.NoError(t, err)
	again, err := parser.ParseFile(context.Background(), strings.NewReader(sampleBankOFX), accountID)
	require.NoError(t, err)
	other, err := parser.ParseFile(context.Background(), strings.NewReader(sampleBankOFX), "acct-savings")
	require.NoError(t, err)

	seen := make(map[string]struct{})
	for i := range first.Transactions {
		assert.Equal(t, first.Transactions[i].ID, again.Transactions[i].ID)
		assert.NotEqual(t, first.Transactions[i].ID, other.Transactions[i].ID)
		seen[first.Transactions[i].ID] = struct{}{}
	}
	assert.Len(t, seen, len(first.Transactions))
}

func TestParseFile_RequiresAccount(t *testing.T) {
	_, err := NewParser().ParseFile(context.Background(), strings.NewReader(sampleBankOFX), " ")
	assert.Error(t, err)
}

func TestParseFile_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewParser().ParseFile(ctx, strings.NewReader(sampleBankOFX), accountID)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPreprocess(t *testing.T) {
	in := "\n  <SEVERITY>Info</SEVERITY>\n<CODE\n"
	out := preprocess(in)
	assert.True(t, strings.HasPrefix(out, "<SEVERITY>INFO</SEVERITY>"))
	assert.Contains(t, out, "<CODE>")
}

func TestExtractMerchantName(t *testing.T) {
	tests := []struct {
		name     string
		tx       ofxgo.Transaction
		expected string
	}{
		{name: "remove POS prefix", tx: ofxgo.Transaction{Name: "POS PURCHASE STARBUCKS"}, expected: "STARBUCKS"},
		{name: "remove DEBIT CARD prefix", tx: ofxgo.Transaction{Name: "DEBIT CARD PURCHASE WHOLE FOODS"}, expected: "WHOLE FOODS"},
		{name: "keep clean name", tx: ofxgo.Transaction{Name: "NETFLIX.COM"}, expected: "NETFLIX.COM"},
		{name: "trim whitespace", tx: ofxgo.Transaction{Name: "  AMAZON.COM  "}, expected: "AMAZON.COM"},
		{name: "strip leading date", tx: ofxgo.Transaction{Name: "03/14 SPOTIFY USA"}, expected: "SPOTIFY USA"},
		{name: "generic name uses memo", tx: ofxgo.Transaction{Name: "PAYMENT", Memo: "CITY WATER DEPT"}, expected: "CITY WATER DEPT"},
		{name: "payee wins", tx: ofxgo.Transaction{Name: "ACH DEBIT 12345", Payee: &ofxgo.Payee{Name: "Landlord LLC"}}, expected: "Landlord LLC"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, extractMerchantName(tt.tx))
		})
	}
}
