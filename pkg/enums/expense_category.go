package enums

import "fmt"

// ExpenseCategory groups operating costs on the profit report.
type ExpenseCategory string

const (
	ExpenseCategoryIngredients ExpenseCategory = "ingredients"
	ExpenseCategoryUtilities   ExpenseCategory = "utilities"
	ExpenseCategoryPayroll     ExpenseCategory = "payroll"
	ExpenseCategoryRent        ExpenseCategory = "rent"
	ExpenseCategoryOther       ExpenseCategory = "other"
)

var validExpenseCategories = []ExpenseCategory{
	ExpenseCategoryIngredients,
	ExpenseCategoryUtilities,
	ExpenseCategoryPayroll,
	ExpenseCategoryRent,
	ExpenseCategoryOther,
}

// String implements fmt.Stringer.
func (e ExpenseCategory) String() string {
	return string(e)
}

// IsValid reports whether the value is a known ExpenseCategory.
func (e ExpenseCategory) IsValid() bool {
	for _, candidate := range validExpenseCategories {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseExpenseCategory converts raw input into a ExpenseCategory.
func ParseExpenseCategory(value string) (ExpenseCategory, error) {
	for _, candidate := range validExpenseCategories {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid expense category %q", value)
}
