package config

// ConfigBackend is where `replybot config set` persists values. Get reports
// ok=false for keys that were never written.
type ConfigBackend interface {
	GetString(key string) (val string, ok bool, err error)
	GetInt(key string) (val int, ok bool, err error)
	GetFloat(key string) (val float64, ok bool, err error)
	Set(key string, val any) error
	Delete(key string) error
}
