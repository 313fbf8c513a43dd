package session

// Payload — произвольные данные сессии оператора (черновики форм и т.п.).
type Payload map[string]any

// Context — явный контекст операторской сессии. Раньше «текущая партия»
// жила в глобальной переменной; теперь она привязана к оператору и
// передаётся в операции ядра явно.
type Context struct {
	OperatorID    int64
	ActiveBatchID int64 // 0 — партия не выбрана
	Payload       Payload
}
