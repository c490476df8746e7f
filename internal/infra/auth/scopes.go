package auth

// Права в токене консоли. "admin" проходит любую проверку.
const (
	ScopeAdmin           = "admin"
	ScopeWorkflowsDecide = "workflows.decide" // создание и решения по согласованиям
	ScopeChecksRun       = "checks.run"       // KYC / AML / риск
	ScopeUploadsWrite    = "uploads.write"    // массовая загрузка
	ScopeAuditRead       = "audit.read"       // журнал и выгрузки
)
