package config

const (
	// BittrexRESTBaseURL is the bittrex exchange base REST url.
	BittrexRESTBaseURL = "https://bittrex.com/api/v1.1/public/"
)

// Config contains config values for the app.
// Struct values are loaded from user defined JSON config file.
type Config struct {
	Exchanges  []Exchange `json:"exchanges"`
	Connection Connection `json:"connection"`
	Log        Log        `json:"log"`
}

// Exchange contains config values for different exchanges.
type Exchange struct {
	Name    string   `json:"name"`
	Markets []Market `json:"markets"`
}

// Market contains config values for different markets.
// ID is the exchange market code and CommitName is the instrument name used in storage.
type Market struct {
	ID             string   `json:"id"`
	CommitName     string   `json:"commit_name"`
	RESTPingIntSec int      `json:"rest_ping_interval_sec"`
	Storages       []string `json:"storages"`
}

// Connection contains config values for different API and storage connections.
type Connection struct {
	REST     REST     `json:"rest"`
	SQLite   SQLite   `json:"sqlite"`
	MySQL    MySQL    `json:"mysql"`
	Postgres Postgres `json:"postgres"`
	ES       ES       `json:"elastic_search"`
}

// REST contains config values for REST API connection.
type REST struct {
	ReqTimeoutSec       int `json:"request_timeout_sec"`
	MaxIdleConns        int `json:"max_idle_conns"`
	MaxIdleConnsPerHost int `json:"max_idle_conns_per_host"`
}

// SQLite contains config values for sqlite.
type SQLite struct {
	Path          string `json:"path"`
	ReqTimeoutSec int    `json:"request_timeout_sec"`
}

// MySQL contains config values for mysql.
type MySQL struct {
	User               string `json:"user"`
	Password           string `json:"password"`
	URL                string `json:"URL"`
	Schema             string `json:"schema"`
	ReqTimeoutSec      int    `json:"request_timeout_sec"`
	ConnMaxLifetimeSec int    `json:"conn_max_lifetime_sec"`
	MaxOpenConns       int    `json:"max_open_conns"`
	MaxIdleConns       int    `json:"max_idle_conns"`
}

// Postgres contains config values for postgres.
type Postgres struct {
	DSN                string `json:"dsn"`
	ReqTimeoutSec      int    `json:"request_timeout_sec"`
	ConnMaxLifetimeSec int    `json:"conn_max_lifetime_sec"`
	MaxOpenConns       int    `json:"max_open_conns"`
	MaxIdleConns       int    `json:"max_idle_conns"`
}

// ES contains config values for elastic search.
type ES struct {
	Addresses           []string `json:"addresses"`
	Username            string   `json:"username"`
	Password            string   `json:"password"`
	IndexName           string   `json:"index_name"`
	ReqTimeoutSec       int      `json:"request_timeout_sec"`
	MaxIdleConns        int      `json:"max_idle_conns"`
	MaxIdleConnsPerHost int      `json:"max_idle_conns_per_host"`
}

// Log contains config values for logging.
type Log struct {
	Level    string `json:"level"`
	FilePath string `json:"file_path"`
}
