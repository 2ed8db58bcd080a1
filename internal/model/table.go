package model

// Table names a table in the local store.
type Table string

// Tables observed by the change observer and carried in every snapshot.
const (
	TableMembers        Table = "members"
	TableCategories     Table = "categories"
	TableItems          Table = "items"
	TableValues         Table = "values"
	TableTransactions   Table = "transactions"
	TableBudgets        Table = "budgets"
	TableGoals          Table = "goals"
	TablePaymentMethods Table = "payment_methods"
)

// ObservedTables lists every synchronized table in snapshot order.
var ObservedTables = []Table{
	TableMembers,
	TableCategories,
	TableItems,
	TableValues,
	TableTransactions,
	TableBudgets,
	TableGoals,
	TablePaymentMethods,
}

// EntityTables lists the tables stored as generic entities (everything
// except transactions, which have a typed schema).
var EntityTables = []Table{
	TableMembers,
	TableCategories,
	TableItems,
	TableValues,
	TableBudgets,
	TableGoals,
	TablePaymentMethods,
}

// Valid reports whether t is one of the observed tables.
func (t Table) Valid() bool {
	for _, known := range ObservedTables {
		if t == known {
			return true
		}
	}
	return false
}

// IsEntity reports whether t is stored as a generic entity table.
func (t Table) IsEntity() bool {
	return t.Valid() && t != TableTransactions
}

func (t Table) String() string { return string(t) }
