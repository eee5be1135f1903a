package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/sharetube/syncroom/internal/app"
)

type configVar[T any] struct {
	envKey       string
	flagKey      string
	defaultValue T
	usage        string
}

// register declares the flag, binds its env variable and sets its default.
func (v configVar[T]) register() {
	switch d := any(v.defaultValue).(type) {
	case string:
		pflag.String(v.flagKey, d, v.usage)
	case int:
		pflag.Int(v.flagKey, d, v.usage)
	case float64:
		pflag.Float64(v.flagKey, d, v.usage)
	case time.Duration:
		pflag.Duration(v.flagKey, d, v.usage)
	case []string:
		pflag.StringSlice(v.flagKey, d, v.usage)
	default:
		panic(fmt.Sprintf("unsupported config type %T for %s", d, v.flagKey))
	}

	viper.BindEnv(v.flagKey, v.envKey)
	viper.SetDefault(v.flagKey, v.defaultValue)
}

var (
	configPath = configVar[string]{
		envKey:       "SERVER_CONFIG",
		flagKey:      "config",
		defaultValue: "",
		usage:        "Optional YAML config file",
	}
	secret = configVar[string]{
		envKey:       "SERVER_SECRET",
		flagKey:      "secret",
		defaultValue: "",
		usage:        "Secret for bearer token signatures",
	}
	port = configVar[int]{
		envKey:       "SERVER_PORT",
		flagKey:      "port",
		defaultValue: 80,
		usage:        "Server port",
	}
	host = configVar[string]{
		envKey:       "SERVER_HOST",
		flagKey:      "host",
		defaultValue: "0.0.0.0",
		usage:        "Server host",
	}
	logLevel = configVar[string]{
		envKey:       "SERVER_LOG_LEVEL",
		flagKey:      "log-level",
		defaultValue: "INFO",
		usage:        "Logging level",
	}
	membersLimit = configVar[int]{
		envKey:       "SERVER_MEMBERS_LIMIT",
		flagKey:      "members-limit",
		defaultValue: 9,
		usage:        "Maximum number of members in the room",
	}
	historyLimit = configVar[int]{
		envKey:       "SERVER_HISTORY_LIMIT",
		flagKey:      "history-limit",
		defaultValue: 200,
		usage:        "Number of log entries kept per room",
	}
	catchUpLimit = configVar[int]{
		envKey:       "SERVER_CATCH_UP_LIMIT",
		flagKey:      "catch-up-limit",
		defaultValue: 50,
		usage:        "Number of log entries replayed on connect",
	}
	outboxLimit = configVar[int]{
		envKey:       "SERVER_OUTBOX_LIMIT",
		flagKey:      "outbox-limit",
		defaultValue: 256,
		usage:        "Maximum number of queued frames per connection",
	}
	chatMaxLength = configVar[int]{
		envKey:       "SERVER_CHAT_MAX_LENGTH",
		flagKey:      "chat-max-length",
		defaultValue: 500,
		usage:        "Maximum chat message length in characters",
	}
	gracePeriod = configVar[time.Duration]{
		envKey:       "SERVER_GRACE_PERIOD",
		flagKey:      "grace-period",
		defaultValue: 30 * time.Second,
		usage:        "How long an empty room lives",
	}
	memberGracePeriod = configVar[time.Duration]{
		envKey:       "SERVER_MEMBER_GRACE_PERIOD",
		flagKey:      "member-grace-period",
		defaultValue: 30 * time.Second,
		usage:        "How long a disconnected member keeps its seat",
	}
	heartbeatInterval = configVar[time.Duration]{
		envKey:       "SERVER_HEARTBEAT_INTERVAL",
		flagKey:      "heartbeat-interval",
		defaultValue: 10 * time.Second,
		usage:        "Heartbeat and ping interval",
	}
	missedHeartbeats = configVar[int]{
		envKey:       "SERVER_MISSED_HEARTBEATS",
		flagKey:      "missed-heartbeats",
		defaultValue: 3,
		usage:        "Missed heartbeats before a member is considered disconnected",
	}
	rateLimit = configVar[float64]{
		envKey:       "SERVER_RATE_LIMIT",
		flagKey:      "rate-limit",
		defaultValue: 20,
		usage:        "Inbound messages per second per connection",
	}
	rateBurst = configVar[int]{
		envKey:       "SERVER_RATE_BURST",
		flagKey:      "rate-burst",
		defaultValue: 40,
		usage:        "Inbound message burst per connection",
	}
	censoredWords = configVar[[]string]{
		envKey:       "SERVER_CENSORED_WORDS",
		flagKey:      "censored-words",
		defaultValue: []string{},
		usage:        "Words masked in chat messages",
	}
	redisPort = configVar[int]{
		envKey:       "REDIS_PORT",
		flagKey:      "redis-port",
		defaultValue: 6379,
		usage:        "Redis port",
	}
	redisHost = configVar[string]{
		envKey:       "REDIS_HOST",
		flagKey:      "redis-host",
		defaultValue: "localhost",
		usage:        "Redis host, empty disables archiving",
	}
	redisPassword = configVar[string]{
		envKey:       "REDIS_PASSWORD",
		flagKey:      "redis-password",
		defaultValue: "",
		usage:        "Redis password",
	}
	archiveTTL = configVar[time.Duration]{
		envKey:       "SERVER_ARCHIVE_TTL",
		flagKey:      "archive-ttl",
		defaultValue: 24 * 14 * time.Hour,
		usage:        "How long closed rooms stay archived",
	}
)

func loadAppConfig() (*app.AppConfig, error) {
	configPath.register()
	secret.register()
	port.register()
	host.register()
	logLevel.register()
	membersLimit.register()
	historyLimit.register()
	catchUpLimit.register()
	outboxLimit.register()
	chatMaxLength.register()
	gracePeriod.register()
	memberGracePeriod.register()
	heartbeatInterval.register()
	missedHeartbeats.register()
	rateLimit.register()
	rateBurst.register()
	censoredWords.register()
	redisPort.register()
	redisHost.register()
	redisPassword.register()
	archiveTTL.register()
	pflag.Parse()

	viper.BindPFlags(pflag.CommandLine)

	if path := viper.GetString(configPath.flagKey); path != "" {
		viper.SetConfigFile(path)
		viper.SetConfigType("yaml")
		if err := viper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	config := &app.AppConfig{
		Secret:            viper.GetString(secret.flagKey),
		Host:              viper.GetString(host.flagKey),
		Port:              viper.GetInt(port.flagKey),
		LogLevel:          viper.GetString(logLevel.flagKey),
		MembersLimit:      viper.GetInt(membersLimit.flagKey),
		HistoryLimit:      viper.GetInt(historyLimit.flagKey),
		CatchUpLimit:      viper.GetInt(catchUpLimit.flagKey),
		OutboxLimit:       viper.GetInt(outboxLimit.flagKey),
		ChatMaxLength:     viper.GetInt(chatMaxLength.flagKey),
		GracePeriod:       viper.GetDuration(gracePeriod.flagKey),
		MemberGracePeriod: viper.GetDuration(memberGracePeriod.flagKey),
		HeartbeatInterval: viper.GetDuration(heartbeatInterval.flagKey),
		MissedHeartbeats:  viper.GetInt(missedHeartbeats.flagKey),
		RateLimit:         viper.GetFloat64(rateLimit.flagKey),
		RateBurst:         viper.GetInt(rateBurst.flagKey),
		CensoredWords:     viper.GetStringSlice(censoredWords.flagKey),
		RedisHost:         viper.GetString(redisHost.flagKey),
		RedisPort:         viper.GetInt(redisPort.flagKey),
		RedisPassword:     viper.GetString(redisPassword.flagKey),
		ArchiveTTL:        viper.GetDuration(archiveTTL.flagKey),
	}

	return config, nil
}

func main() {
	ctx := context.Background()

	appConfig, err := loadAppConfig()
	if err != nil {
		log.Fatal(err)
	}

	jsonConfig, _ := json.MarshalIndent(appConfig, "", "  ")
	fmt.Printf("starting app with config: %s\n", jsonConfig)

	log.Fatal(app.Run(ctx, appConfig))
}
