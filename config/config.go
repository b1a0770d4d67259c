/*
Copyright 2024 Arbor Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package config

import (
	"encoding/json"
	"errors"
	"log"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/sirupsen/logrus"
)

const (
	DEFAULT_PORT = "5001"
)

var ConfigStore atomic.Value

type ServerConfig struct {
	Secure    bool   `json:"secure" envconfig:"ARBOR_SERVER_SECURE"`
	SecretKey string `json:"secret_key" envconfig:"ARBOR_SERVER_SECRET_KEY"`
	Port      string `json:"port" envconfig:"ARBOR_SERVER_PORT"`
}

type DataSourceConfig struct {
	Dns string `json:"dns" envconfig:"ARBOR_DATA_SOURCE_DNS"`
}

type RedisConfig struct {
	Dns string `json:"dns" envconfig:"ARBOR_REDIS_DNS"`
}

type QueueConfig struct {
	DeleteQueue    string `json:"delete_queue" envconfig:"ARBOR_QUEUE_DELETE_QUEUE"`
	MonitoringPort string `json:"monitoring_port" envconfig:"ARBOR_QUEUE_MONITORING_PORT"`
}

// RateLimitConfig throttles the HTTP surface. All fields nil disables it.
type RateLimitConfig struct {
	RequestsPerSecond  *float64 `json:"requests_per_second" envconfig:"ARBOR_RATE_LIMIT_RPS"`
	Burst              *int     `json:"burst" envconfig:"ARBOR_RATE_LIMIT_BURST"`
	CleanupIntervalSec *int     `json:"cleanup_interval_sec" envconfig:"ARBOR_RATE_LIMIT_CLEANUP_INTERVAL_SEC"`
}

// CascadeDeleteConfig holds the tunables of the cascading soft-delete engine.
type CascadeDeleteConfig struct {
	// MaxConcurrentOperations caps live (non-terminal) delete operations per
	// (actor, container) pair. Admission is refused above the ceiling.
	MaxConcurrentOperations int `json:"max_concurrent_operations" envconfig:"ARBOR_DELETE_MAX_CONCURRENT_OPERATIONS"`
	// BatchSize is the number of nodes soft-deleted between checkpoints.
	BatchSize int `json:"batch_size" envconfig:"ARBOR_DELETE_BATCH_SIZE"`
	// ChildPageSize bounds each child-discovery query during traversal.
	ChildPageSize int `json:"child_page_size" envconfig:"ARBOR_DELETE_CHILD_PAGE_SIZE"`
	// OperationRetentionHours is how long ledger rows stay queryable.
	OperationRetentionHours int `json:"operation_retention_hours" envconfig:"ARBOR_DELETE_OPERATION_RETENTION_HOURS"`
	// NodeRetentionDays is how long a soft-deleted node is kept before purge.
	NodeRetentionDays int `json:"node_retention_days" envconfig:"ARBOR_DELETE_NODE_RETENTION_DAYS"`
	// RecoveryPollSeconds is the scan interval for stuck operations.
	RecoveryPollSeconds int `json:"recovery_poll_seconds" envconfig:"ARBOR_DELETE_RECOVERY_POLL_SECONDS"`
	// StuckThresholdMinutes is how long an in-progress operation may go
	// without finishing before the recovery poller re-enqueues it.
	StuckThresholdMinutes int `json:"stuck_threshold_minutes" envconfig:"ARBOR_DELETE_STUCK_THRESHOLD_MINUTES"`
}

func (c CascadeDeleteConfig) OperationRetention() time.Duration {
	return time.Duration(c.OperationRetentionHours) * time.Hour
}

func (c CascadeDeleteConfig) NodeRetention() time.Duration {
	return time.Duration(c.NodeRetentionDays) * 24 * time.Hour
}

func (c CascadeDeleteConfig) RecoveryPollInterval() time.Duration {
	return time.Duration(c.RecoveryPollSeconds) * time.Second
}

func (c CascadeDeleteConfig) StuckThreshold() time.Duration {
	return time.Duration(c.StuckThresholdMinutes) * time.Minute
}

type SlackWebhook struct {
	WebhookUrl string `json:"webhook_url"`
}

type Notification struct {
	Slack SlackWebhook `json:"slack"`
}

type Configuration struct {
	ProjectName   string              `json:"project_name" envconfig:"ARBOR_PROJECT_NAME"`
	Server        ServerConfig        `json:"server"`
	DataSource    DataSourceConfig    `json:"data_source"`
	Redis         RedisConfig         `json:"redis"`
	Queue         QueueConfig         `json:"queue"`
	CascadeDelete CascadeDeleteConfig `json:"cascade_delete"`
	RateLimit     RateLimitConfig     `json:"rate_limit"`
	Notification  Notification        `json:"notification"`
}

func loadConfigFromFile(file string) error {
	var cnf Configuration
	_, err := os.Stat(file)
	if err == nil {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		err = json.NewDecoder(f).Decode(&cnf)
		if err != nil {
			return err
		}

	} else if errors.Is(err, os.ErrNotExist) {
		log.Println("config json not passed, will use env variables")
	}

	// override config from environment variables
	err = envconfig.Process("arbor", &cnf)
	if err != nil {
		return err
	}

	err = cnf.validateAndAddDefaults()
	if err != nil {
		return err
	}

	ConfigStore.Store(&cnf)
	return err
}

func InitConfig(configFile string) error {
	logger()
	return loadConfigFromFile(configFile)
}

func Fetch() (*Configuration, error) {
	config := ConfigStore.Load()
	c, ok := config.(*Configuration)
	if !ok {
		return nil, errors.New("config not loaded from file. Create a json file called arbor.json with your config ❌")
	}
	return c, nil
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.ProjectName == "" {
		log.Println("Warning: Project name is empty. Setting a default name.")
		cnf.ProjectName = "Arbor Server"
	}

	if cnf.DataSource.Dns == "" {
		log.Println("Error: Data source DNS is empty. It's a required field.")
		return errors.New("data source DNS is required")
	}

	if cnf.Redis.Dns == "" {
		log.Println("Error: Redis DNS is empty. It's a required field.")
		return errors.New("redis DNS is required")
	}

	// Trim white spaces from fields
	cnf.ProjectName = strings.TrimSpace(cnf.ProjectName)
	cnf.Server.Port = strings.TrimSpace(cnf.Server.Port)
	cnf.DataSource.Dns = strings.TrimSpace(cnf.DataSource.Dns)
	cnf.Redis.Dns = strings.TrimSpace(cnf.Redis.Dns)

	if cnf.Server.Port == "" {
		cnf.Server.Port = DEFAULT_PORT
		log.Printf("Warning: Port not specified in config. Setting default port: %s", DEFAULT_PORT)
	}

	if cnf.Queue.DeleteQueue == "" {
		cnf.Queue.DeleteQueue = "delete:operations"
	}
	if cnf.Queue.MonitoringPort == "" {
		cnf.Queue.MonitoringPort = "5003"
	}

	// Rate limiting is disabled by default (when both RPS and Burst are nil)
	if cnf.RateLimit.RequestsPerSecond != nil && cnf.RateLimit.Burst == nil {
		defaultBurst := 2 * int(*cnf.RateLimit.RequestsPerSecond)
		cnf.RateLimit.Burst = &defaultBurst
		log.Printf("Warning: Rate limit burst not specified. Setting default value: %d", defaultBurst)
	}
	if cnf.RateLimit.RequestsPerSecond == nil && cnf.RateLimit.Burst != nil {
		defaultRPS := float64(*cnf.RateLimit.Burst) / 2
		cnf.RateLimit.RequestsPerSecond = &defaultRPS
		log.Printf("Warning: Rate limit RPS not specified. Setting default value: %.2f", defaultRPS)
	}
	if cnf.RateLimit.CleanupIntervalSec == nil {
		defaultCleanup := 10800
		cnf.RateLimit.CleanupIntervalSec = &defaultCleanup
	}

	cnf.CascadeDelete.applyDefaults()

	return nil
}

func (c *CascadeDeleteConfig) applyDefaults() {
	if c.MaxConcurrentOperations <= 0 {
		c.MaxConcurrentOperations = 5
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 10
	}
	if c.ChildPageSize <= 0 {
		c.ChildPageSize = 50
	}
	if c.OperationRetentionHours <= 0 {
		c.OperationRetentionHours = 24
	}
	if c.NodeRetentionDays <= 0 {
		c.NodeRetentionDays = 90
	}
	if c.RecoveryPollSeconds <= 0 {
		c.RecoveryPollSeconds = 30
	}
	if c.StuckThresholdMinutes <= 0 {
		c.StuckThresholdMinutes = 10
	}
}

// MockConfig sets a mock configuration for testing purposes. Queue and
// cascade defaults are applied just like validateAndAddDefaults does, so
// enqueues in tests carry a usable task typename.
func MockConfig(mockConfig *Configuration) {
	if mockConfig.Queue.DeleteQueue == "" {
		mockConfig.Queue.DeleteQueue = "delete:operations"
	}
	if mockConfig.Queue.MonitoringPort == "" {
		mockConfig.Queue.MonitoringPort = "5003"
	}
	mockConfig.CascadeDelete.applyDefaults()
	ConfigStore.Store(mockConfig)
}

func logger() {
	logger := logrus.New()
	log.SetOutput(logger.Writer())
}
