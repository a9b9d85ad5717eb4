package config

// ConfigBackend abstracts platform-specific config storage. macOS keeps values
// in the com.kalambet.caiarchive UserDefaults domain; elsewhere they live in
// $XDG_CONFIG_HOME/caiarchive/config.yaml. Integer keys go through
// GetInt/SetInt; every other type, lists included, is stored as a string.
type ConfigBackend interface {
	GetString(key string) (val string, ok bool, err error)
	GetInt(key string) (val int, ok bool, err error)
	SetString(key, val string) error
	SetInt(key string, val int) error
	Delete(key string) error
}
