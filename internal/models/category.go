package models

// Category is the local spending taxonomy every ledger entry is filed under.
type Category string

const (
	CategoryHousing        Category = "Housing"
	CategoryTransportation Category = "Transportation"
	CategoryFood           Category = "Food"
	CategoryUtilities      Category = "Utilities"
	CategoryInsurance      Category = "Insurance"
	CategoryHealthcare     Category = "Healthcare"
	CategorySavings        Category = "Savings"
	CategoryPersonal       Category = "Personal"
	CategoryEntertainment  Category = "Entertainment"
	CategoryEducation      Category = "Education"
	CategoryDebt           Category = "Debt"
	CategoryIncome         Category = "Income"
	CategoryTransfer       Category = "Transfer"
	CategoryOther          Category = "Other"
)

var validCategories = map[Category]struct{}{
	CategoryHousing:        {},
	CategoryTransportation: {},
	CategoryFood:           {},
	CategoryUtilities:      {},
	CategoryInsurance:      {},
	CategoryHealthcare:     {},
	CategorySavings:        {},
	CategoryPersonal:       {},
	CategoryEntertainment:  {},
	CategoryEducation:      {},
	CategoryDebt:           {},
	CategoryIncome:         {},
	CategoryTransfer:       {},
	CategoryOther:          {},
}

func (c Category) Valid() bool {
	_, ok := validCategories[c]
	return ok
}
