package country

import (
	"github.com/shopspring/decimal"

	"loanflow/internal/application/models"
	dErrors "loanflow/pkg/domain-errors"
)

// ReferenceData ties a country to its mandated currency and lending limits.
type ReferenceData struct {
	Currency         models.Currency
	MaxLoanAmount    decimal.Decimal
	MinMonthlyIncome decimal.Decimal
}

// referenceTable is static reference data shared by strategies and the
// application service. Amounts are in the country's mandated currency.
var referenceTable = map[models.Country]ReferenceData{
	models.CountryES: {
		Currency:         models.CurrencyEUR,
		MaxLoanAmount:    decimal.NewFromInt(100_000),
		MinMonthlyIncome: decimal.NewFromInt(900),
	},
	models.CountryMX: {
		Currency:         models.CurrencyMXN,
		MaxLoanAmount:    decimal.NewFromInt(2_000_000),
		MinMonthlyIncome: decimal.NewFromInt(8_000),
	},
	models.CountryCO: {
		Currency:         models.CurrencyCOP,
		MaxLoanAmount:    decimal.NewFromInt(400_000_000),
		MinMonthlyIncome: decimal.NewFromInt(1_500_000),
	},
}

// Reference returns the reference data for a country.
func Reference(c models.Country) (ReferenceData, error) {
	ref, ok := referenceTable[c]
	if !ok {
		return ReferenceData{}, dErrors.Newf(dErrors.CodeValidation, "unsupported country: %s", c)
	}
	return ref, nil
}

// MandatedCurrency returns the single currency a country's applications must
// use.
func MandatedCurrency(c models.Country) (models.Currency, error) {
	ref, err := Reference(c)
	if err != nil {
		return "", err
	}
	return ref.Currency, nil
}
