package types

import "time"

// Config is a struct to hold the configuration data
type Config struct {
	Logging struct {
		OutputLevel  string `yaml:"outputLevel" envconfig:"LOGGING_OUTPUT_LEVEL"`
		OutputStderr bool   `yaml:"outputStderr" envconfig:"LOGGING_OUTPUT_STDERR"`

		FilePath  string `yaml:"filePath" envconfig:"LOGGING_FILE_PATH"`
		FileLevel string `yaml:"fileLevel" envconfig:"LOGGING_FILE_LEVEL"`
	} `yaml:"logging"`

	Provider struct {
		Url       string `yaml:"url" envconfig:"PROVIDER_URL"`
		AuthToken string `yaml:"authToken" envconfig:"PROVIDER_AUTH_TOKEN"`

		// ReadTimeout bounds the wait for the next batch frame.
		ReadTimeout time.Duration `yaml:"readTimeout" envconfig:"PROVIDER_READ_TIMEOUT"`
	} `yaml:"provider"`

	Indexer struct {
		// StateKey namespaces the persisted cursor, so multiple indexer
		// instances can share one database.
		StateKey   string `yaml:"stateKey" envconfig:"INDEXER_STATE_KEY"`
		StartBlock uint64 `yaml:"startBlock" envconfig:"INDEXER_START_BLOCK"`

		// TopicRegistryContract is the factory contract announcing new topics.
		TopicRegistryContract string   `yaml:"topicRegistryContract" envconfig:"INDEXER_TOPIC_REGISTRY_CONTRACT"`
		TopicContracts        []string `yaml:"topicContracts" envconfig:"INDEXER_TOPIC_CONTRACTS"`

		TokenDecimals   int32         `yaml:"tokenDecimals" envconfig:"INDEXER_TOKEN_DECIMALS"`
		BatchRetryLimit uint64        `yaml:"batchRetryLimit" envconfig:"INDEXER_BATCH_RETRY_LIMIT"`
		ReconnectDelay  time.Duration `yaml:"reconnectDelay" envconfig:"INDEXER_RECONNECT_DELAY"`
	} `yaml:"indexer"`

	Database struct {
		Engine string `yaml:"engine" envconfig:"DATABASE_ENGINE"`
		Sqlite struct {
			File string `yaml:"file" envconfig:"DATABASE_SQLITE_FILE"`

			MaxOpenConns int `yaml:"maxOpenConns" envconfig:"DATABASE_SQLITE_MAX_OPEN_CONNS"`
			MaxIdleConns int `yaml:"maxIdleConns" envconfig:"DATABASE_SQLITE_MAX_IDLE_CONNS"`
		} `yaml:"sqlite"`
		Pgsql struct {
			Username string `yaml:"user" envconfig:"DATABASE_PGSQL_USERNAME"`
			Password string `yaml:"password" envconfig:"DATABASE_PGSQL_PASSWORD"`
			Name     string `yaml:"name" envconfig:"DATABASE_PGSQL_NAME"`
			Host     string `yaml:"host" envconfig:"DATABASE_PGSQL_HOST"`
			Port     string `yaml:"port" envconfig:"DATABASE_PGSQL_PORT"`

			MaxOpenConns int `yaml:"maxOpenConns" envconfig:"DATABASE_PGSQL_MAX_OPEN_CONNS"`
			MaxIdleConns int `yaml:"maxIdleConns" envconfig:"DATABASE_PGSQL_MAX_IDLE_CONNS"`
		} `yaml:"pgsql"`
		PgsqlWriter struct {
			Username string `yaml:"user" envconfig:"DATABASE_PGSQL_WRITER_USERNAME"`
			Password string `yaml:"password" envconfig:"DATABASE_PGSQL_WRITER_PASSWORD"`
			Name     string `yaml:"name" envconfig:"DATABASE_PGSQL_WRITER_NAME"`
			Host     string `yaml:"host" envconfig:"DATABASE_PGSQL_WRITER_HOST"`
			Port     string `yaml:"port" envconfig:"DATABASE_PGSQL_WRITER_PORT"`

			MaxOpenConns int `yaml:"maxOpenConns" envconfig:"DATABASE_PGSQL_WRITER_MAX_OPEN_CONNS"`
			MaxIdleConns int `yaml:"maxIdleConns" envconfig:"DATABASE_PGSQL_WRITER_MAX_IDLE_CONNS"`
		} `yaml:"pgsqlWriter"`
	} `yaml:"database"`

	Metrics struct {
		Enabled bool   `yaml:"enabled" envconfig:"METRICS_ENABLED"`
		Host    string `yaml:"host" envconfig:"METRICS_HOST"`
		Port    string `yaml:"port" envconfig:"METRICS_PORT"`
	} `yaml:"metrics"`
}

type SqliteDatabaseConfig struct {
	File         string
	MaxOpenConns int
	MaxIdleConns int
}

type PgsqlDatabaseConfig struct {
	Username     string
	Password     string
	Name         string
	Host         string
	Port         string
	MaxOpenConns int
	MaxIdleConns int
}
