package core

import "formcore/pkg/domain"

type (
	EntityType         = domain.EntityType
	Identity           = domain.Identity
	User               = domain.User
	Form               = domain.Form
	Field              = domain.Field
	FieldType          = domain.FieldType
	Response           = domain.Response
	Answer             = domain.Answer
	Change             = domain.Change
	Result             = domain.Result
	Violation          = domain.Violation
	RulesEngine        = domain.RulesEngine
	Transaction        = domain.Transaction
	TransactionView    = domain.TransactionView
	PersistentStore    = domain.PersistentStore
	RuleViolationError = domain.RuleViolationError
)
