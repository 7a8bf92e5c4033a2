package errors

// ErrorCode represents a unique error code for identifying different error types.
type ErrorCode int

const (
	// General errors (1-99)
	ErrCodeUnknown ErrorCode = 1

	// Validation errors (100-199)
	ErrCodeInvalidParameter     ErrorCode = 100
	ErrCodeInvalidConfiguration ErrorCode = 101
	ErrCodeInvalidOrder         ErrorCode = 102
	ErrCodeInvalidSignal        ErrorCode = 103
	ErrCodeInvalidType          ErrorCode = 104
	ErrCodeInvalidPeriod        ErrorCode = 105
	ErrCodeMissingParameter     ErrorCode = 106

	// Data stream errors (200-299)
	ErrCodeDataGap               ErrorCode = 200
	ErrCodeDataSourceUnavailable ErrorCode = 201
	ErrCodeDataParseFailed       ErrorCode = 202
	ErrCodeNoDataFound           ErrorCode = 203

	// Strategy errors (300-399)
	ErrCodeStrategyFault       ErrorCode = 300
	ErrCodeStrategyFatalConfig ErrorCode = 301
	ErrCodeStrategyNotFound    ErrorCode = 302

	// Risk errors (400-499)
	ErrCodeRiskRejected               ErrorCode = 400
	ErrCodeInsufficientRiskParameters ErrorCode = 401

	// Execution errors (500-599)
	ErrCodeExecutionInfeasible ErrorCode = 500
	ErrCodeOrderFailed         ErrorCode = 501

	// Ledger errors (600-699)
	ErrCodeLedgerInvariantViolation ErrorCode = 600
	ErrCodePositionNotFound         ErrorCode = 601

	// Result persistence errors (700-799)
	ErrCodeResultWriteFailed ErrorCode = 700
	ErrCodeQueryFailed       ErrorCode = 701
)
