package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds all application configuration
type Config struct {
	// Service configuration
	ServicePort     string
	ServiceName     string
	DigestAlgorithm string

	// Upload paths
	UploadPath       string
	ImageFeaturePath string

	// URLs the catalog registers layers against
	WebserverURL string
	MapserverURL string

	// GeoServer configuration
	GeoserverURL            string
	GeoserverUsername       string
	GeoserverPassword       string
	GeoserverWorkspace      string
	GeoserverDatastore      string
	ImageLayerWorkspace     string
	ImageLayerDatastore     string
	ImageLayerDatasourceURL string

	// MySQL configuration
	MySQLHost     string
	MySQLPort     string
	MySQLUser     string
	MySQLPassword string
	MySQLDatabase string

	// MinIO configuration
	MinIOEndpoint   string
	MinIOAccessKey  string
	MinIOSecretKey  string
	MinIOBucketName string
	MinIOUseSSL     bool

	// Redis configuration
	RedisHost      string
	RedisPort      string
	RedisPassword  string
	RedisDB        int
	TopicNamespace string

	// Jaeger configuration
	JaegerEndpoint string
}

// LoadConfig loads configuration from environment variables with sensible defaults
func LoadConfig() (*Config, error) {
	config := &Config{
		// Service defaults
		ServicePort:     getEnv("SERVICE_PORT", "8080"),
		ServiceName:     getEnv("SERVICE_NAME", "geolayers-ingest"),
		DigestAlgorithm: getEnv("DIGEST_ALGORITHM", "md5"),

		// Upload defaults
		UploadPath:       getEnv("FILE_UPLOAD_PATH", "/opt/data/geolayers/upload"),
		ImageFeaturePath: getEnv("IMAGE_FEATURE_PATH", "/opt/data/geolayers/upload/images"),

		WebserverURL: getEnv("WEBSERVER_URL", "http://localhost:8081/upload"),
		MapserverURL: getEnv("MAPSERVER_URL", "http://localhost:8600/geoserver"),

		// GeoServer defaults
		GeoserverURL:            getEnv("GEOSERVER_URL", "http://localhost:8600/geoserver/rest"),
		GeoserverUsername:       getEnv("GEOSERVER_USERNAME", "admin"),
		GeoserverPassword:       getEnv("GEOSERVER_PASSWORD", "geoserver"),
		GeoserverWorkspace:      getEnv("GEOSERVER_WORKSPACE", "geolayers"),
		GeoserverDatastore:      getEnv("GEOSERVER_DATASTORE", "shapefiles"),
		ImageLayerWorkspace:     getEnv("IMAGE_LAYER_WORKSPACE", "geolayers"),
		ImageLayerDatastore:     getEnv("IMAGE_LAYER_DATASTORE", "imagefeatures"),
		ImageLayerDatasourceURL: getEnv("IMAGE_LAYER_DATASOURCE_URL", "http://localhost:8600/geoserver/wms"),

		// MySQL defaults
		MySQLHost:     getEnv("MYSQL_HOST", "localhost"),
		MySQLPort:     getEnv("MYSQL_PORT", "3306"),
		MySQLUser:     getEnv("MYSQL_USER", "root"),
		MySQLPassword: getEnv("MYSQL_PASSWORD", ""),
		MySQLDatabase: getEnv("MYSQL_DATABASE", "geolayers"),

		// MinIO defaults
		MinIOEndpoint:   getEnv("MINIO_ENDPOINT", "localhost:9000"),
		MinIOAccessKey:  getEnv("MINIO_ACCESS_KEY", "minioadmin"),
		MinIOSecretKey:  getEnv("MINIO_SECRET_KEY", "minioadmin"),
		MinIOBucketName: getEnv("MINIO_BUCKET_NAME", "geolayers"),
		MinIOUseSSL:     getEnvAsBool("MINIO_USE_SSL", false),

		// Redis defaults
		RedisHost:      getEnv("REDIS_HOST", "localhost"),
		RedisPort:      getEnv("REDIS_PORT", "6379"),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		RedisDB:        getEnvAsInt("REDIS_DB", 0),
		TopicNamespace: getEnv("TOPIC_NAMESPACE", "iweb.geolayers"),

		// Jaeger defaults
		JaegerEndpoint: getEnv("JAEGER_ENDPOINT", "http://localhost:4318"),
	}

	return config, nil
}

// GetDSN returns the MySQL connection string
func (c *Config) GetDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.MySQLUser,
		c.MySQLPassword,
		c.MySQLHost,
		c.MySQLPort,
		c.MySQLDatabase,
	)
}

// GetRedisAddr returns the Redis address
func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}
