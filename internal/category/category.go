// Package category maps the aggregator's category taxonomy onto the local
// one. The table is fixed at compile time; anything outside it is Other.
package category

import (
	"strings"

	"github.com/GregMSThompson/budget-tracker/internal/models"
)

// Fallback is the category for absent or unknown terms.
const Fallback = models.CategoryOther

const subcategorySeparator = " > "

var table = map[string]models.Category{
	// legacy hierarchy, top level
	"Food and Drink": models.CategoryFood,
	"Travel":         models.CategoryTransportation,
	"Transportation": models.CategoryTransportation,
	"Payment":        models.CategoryDebt,
	"Shops":          models.CategoryPersonal,
	"Recreation":     models.CategoryEntertainment,
	"Healthcare":     models.CategoryHealthcare,
	"Service":        models.CategoryUtilities,
	"Community":      models.CategoryOther,
	"Bank Fees":      models.CategoryOther,
	"Cash Advance":   models.CategoryOther,
	"Interest":       models.CategoryIncome,
	"Transfer":       models.CategoryTransfer,
	"Rent":           models.CategoryHousing,
	"Mortgage":       models.CategoryHousing,
	"Loan":           models.CategoryDebt,
	"Tax":            models.CategoryOther,
	"Insurance":      models.CategoryInsurance,
	"Subscription":   models.CategoryPersonal,
	"Income":         models.CategoryIncome,
	"Education":      models.CategoryEducation,

	// personal finance category primaries
	"INCOME":                    models.CategoryIncome,
	"TRANSFER_IN":               models.CategoryTransfer,
	"TRANSFER_OUT":              models.CategoryTransfer,
	"LOAN_PAYMENTS":             models.CategoryDebt,
	"BANK_FEES":                 models.CategoryOther,
	"ENTERTAINMENT":             models.CategoryEntertainment,
	"FOOD_AND_DRINK":            models.CategoryFood,
	"GENERAL_MERCHANDISE":       models.CategoryPersonal,
	"HOME_IMPROVEMENT":          models.CategoryHousing,
	"MEDICAL":                   models.CategoryHealthcare,
	"PERSONAL_CARE":             models.CategoryPersonal,
	"GENERAL_SERVICES":          models.CategoryUtilities,
	"GOVERNMENT_AND_NON_PROFIT": models.CategoryOther,
	"TRANSPORTATION":            models.CategoryTransportation,
	"TRAVEL":                    models.CategoryTransportation,
	"RENT_AND_UTILITIES":        models.CategoryUtilities,
}

// Map resolves a single external term. It never fails.
func Map(term string) models.Category {
	if c, ok := table[strings.TrimSpace(term)]; ok {
		return c
	}
	return Fallback
}

// FromPath maps an external category path ordered most specific first.
// Only path[0] takes part in the mapping; the remaining levels are kept
// verbatim as the subcategory.
func FromPath(path []string) (models.Category, string) {
	if len(path) == 0 {
		return Fallback, ""
	}
	return Map(path[0]), strings.Join(path[1:], subcategorySeparator)
}
