package server

// MetadataServerConfig selects the catalog backend. Only "sqlite" is supported.
type MetadataServerConfig struct {
	Type   string               `mapstructure:"type"   yaml:"type"`
	SQLite MetadataSQLiteConfig `mapstructure:"sqlite" yaml:"sqlite"`
}

// MetadataSQLiteConfig locates the catalog file. BusyTimeout bounds how long a
// connection waits on a lock held by a running sync.
type MetadataSQLiteConfig struct {
	Path        string `mapstructure:"path"         yaml:"path"`
	BusyTimeout string `mapstructure:"busy_timeout" yaml:"busy_timeout"`
}
