package config

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/arkade-os/pegd/internal/core/application"
	"github.com/arkade-os/pegd/internal/core/ports"
	alertsmanager "github.com/arkade-os/pegd/internal/infrastructure/alertsmanager"
	"github.com/arkade-os/pegd/internal/infrastructure/db"
	esploraexplorer "github.com/arkade-os/pegd/internal/infrastructure/explorer/esplora"
	inmemorylivestore "github.com/arkade-os/pegd/internal/infrastructure/live-store/inmemory"
	redislivestore "github.com/arkade-os/pegd/internal/infrastructure/live-store/redis"
	fallbackfeed "github.com/arkade-os/pegd/internal/infrastructure/reserve-feed/fallback"
	staticfeed "github.com/arkade-os/pegd/internal/infrastructure/reserve-feed/static"
	utxofeed "github.com/arkade-os/pegd/internal/infrastructure/reserve-feed/utxo"
	blockscheduler "github.com/arkade-os/pegd/internal/infrastructure/scheduler/block"
	timescheduler "github.com/arkade-os/pegd/internal/infrastructure/scheduler/gocron"
	"github.com/arkade-os/pegd/internal/infrastructure/settlement/htlc"
	"github.com/arkade-os/pegd/internal/infrastructure/settlement/simulator"
	signerclient "github.com/arkade-os/pegd/internal/infrastructure/signer"
	"github.com/arkade-os/pegd/internal/telemetry"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

const (
	signerKeyFile = "signer.key"
	refundKeyFile = "refund.key"
)

var (
	supportedEventDbs = supportedType{
		"inmemory": {},
		"postgres": {},
	}
	supportedDbs = supportedType{
		"badger":   {},
		"sqlite":   {},
		"postgres": {},
	}
	supportedFeeds = supportedType{
		"static": {},
		"utxo":   {},
	}
	supportedSettlements = supportedType{
		"simulator": {},
		"htlc":      {},
	}
	supportedLiveStores = supportedType{
		"inmemory": {},
		"redis":    {},
	}
	supportedNetworks = map[string]*chaincfg.Params{
		chaincfg.MainNetParams.Name:       &chaincfg.MainNetParams,
		chaincfg.TestNet3Params.Name:      &chaincfg.TestNet3Params,
		chaincfg.SigNetParams.Name:        &chaincfg.SigNetParams,
		chaincfg.RegressionNetParams.Name: &chaincfg.RegressionNetParams,
	}
)

type Config struct {
	Datadir     string
	Port        uint32
	AdminPort   uint32
	AdminToken  string
	LogLevel    int
	EnablePprof bool

	DbType              string
	EventDbType         string
	DbDir               string
	DbUrl               string
	EventDbUrl          string
	LiveStoreType       string
	RedisUrl            string
	RedisTxNumOfRetries int

	Network           string
	EsploraURL        string
	ExplorerRateLimit float64
	BlockPollInterval time.Duration

	FeedType             string
	FallbackFeedType     string
	StaticReserve        int64
	FallbackReserve      int64
	ReserveAddresses     []string
	FeedTimeout          time.Duration
	FeedPrimaryTimeout   time.Duration
	ReserveMaxSyncAge    time.Duration
	AttestationInterval  time.Duration
	SignerKey            string
	SettlementType       string
	RefundKey            string
	HtlcFeeRate          int64
	RedemptionTimeout    time.Duration
	RedemptionPoll       time.Duration
	RedemptionMinAmount  int64
	RedemptionMaxAmount  int64
	SimulatorAutoConfirm time.Duration

	AlertManagerURL string

	repo       ports.RepoManager
	svc        application.Service
	explorer   ports.Explorer
	feed       ports.ReserveFeed
	settlement ports.SettlementService
	signer     ports.SignerService
	scheduler  ports.SchedulerService
	blocks     ports.BlockNotifier
	liveStore  ports.LiveStore
	alerts     ports.Alerts
	network    *chaincfg.Params
	registry   *prometheus.Registry
	metrics    *telemetry.Metrics
}

func (c *Config) String() string {
	clone := *c
	if clone.AdminToken != "" {
		clone.AdminToken = "••••••"
	}
	if clone.SignerKey != "" {
		clone.SignerKey = "••••••"
	}
	if clone.RefundKey != "" {
		clone.RefundKey = "••••••"
	}
	if clone.DbUrl != "" {
		clone.DbUrl = "••••••"
	}
	if clone.EventDbUrl != "" {
		clone.EventDbUrl = "••••••"
	}
	if clone.RedisUrl != "" {
		clone.RedisUrl = "••••••"
	}
	json, err := json.MarshalIndent(clone, "", "  ")
	if err != nil {
		return fmt.Sprintf("error while marshalling config JSON: %s", err)
	}
	return string(json)
}

var (
	defaultDatadir             = btcutil.AppDataDir("pegd", false)
	DefaultPort                = 7080
	DefaultAdminPort           = 7081
	defaultDbType              = "badger"
	defaultEventDbType         = "inmemory"
	defaultLiveStoreType       = "inmemory"
	defaultRedisTxNumOfRetries = 10
	defaultNetwork             = chaincfg.MainNetParams.Name
	defaultEsploraURL          = "https://blockstream.info/api"
	defaultExplorerRateLimit   = 10.0
	defaultBlockPollInterval   = 30 * time.Second
	defaultLogLevel            = 4
	defaultFeedType            = "static"
	defaultFeedTimeout         = 10 * time.Second
	defaultFeedPrimaryTimeout  = 5 * time.Second
	defaultReserveMaxSyncAge   = 2 * time.Hour
	defaultAttestationInterval = 30 * time.Minute
	defaultSettlementType      = "simulator"
	defaultHtlcFeeRate         = 2
	defaultRedemptionTimeout   = 24 * time.Hour
	defaultRedemptionPoll      = 30 * time.Second
	defaultRedemptionMinAmount = 0  // 0 means no lower bound
	defaultRedemptionMaxAmount = -1 // -1 means no upper bound
	defaultEnablePprof         = false
)

// env returns a list of strings prefixed with `PEGD_`.
// This is used as a syntax sugar for defining env vars.
func env(values ...string) []string {
	envs := make([]string, len(values))

	for i, value := range values {
		envs[i] = fmt.Sprintf("PEGD_%s", value)
	}

	return envs
}

var (
	Datadir = &cli.StringFlag{
		Usage: "Directory to store data",
		Name:  "datadir", EnvVars: env("DATADIR"),
		Value: defaultDatadir,
	}

	Port = &cli.UintFlag{
		Usage: "Port (public) to listen on",
		Name:  "port", EnvVars: env("PORT"),
		Value: uint(DefaultPort),
	}

	AdminPort = &cli.UintFlag{
		Usage: "Admin port (private) to listen on, fallback to service port if 0",
		Name:  "admin-port", EnvVars: env("ADMIN_PORT"),
		Value: uint(DefaultAdminPort),
	}

	AdminToken = &cli.StringFlag{
		Usage: "Token required in the X-Admin-Token header of admin requests",
		Name:  "admin-token", EnvVars: env("ADMIN_TOKEN"),
	}

	LogLevel = &cli.IntFlag{
		Usage: "Logging level (0-6, where 6 is trace)",
		Name:  "log-level", EnvVars: env("LOG_LEVEL"),
		Value: defaultLogLevel,
	}

	DbType = &cli.StringFlag{
		Usage: "Database type (postgres, sqlite, badger)",
		Name:  "db-type", EnvVars: env("DB_TYPE"),
		Value: defaultDbType,
	}

	DbUrl = &cli.StringFlag{
		Usage: "Postgres connection url if PEGD_DB_TYPE is set to postgres",
		Name:  "pg-db-url", EnvVars: env("PG_DB_URL"),
	}

	EventDbType = &cli.StringFlag{
		Usage: "Event database type (inmemory, postgres)",
		Name:  "event-db-type", EnvVars: env("EVENT_DB_TYPE"),
		Value: defaultEventDbType,
	}

	EventDbUrl = &cli.StringFlag{
		Usage: "Postgres connection url if PEGD_EVENT_DB_TYPE is set to postgres",
		Name:  "pg-event-db-url", EnvVars: env("PG_EVENT_DB_URL"),
	}

	LiveStoreType = &cli.StringFlag{
		Usage: "Cache service type (redis, inmemory)",
		Name:  "live-store-type", EnvVars: env("LIVE_STORE_TYPE"),
		Value: defaultLiveStoreType,
	}

	RedisUrl = &cli.StringFlag{
		Usage: "Redis db connection url if PEGD_LIVE_STORE_TYPE is set to redis",
		Name:  "redis-url", EnvVars: env("REDIS_URL"),
	}

	RedisTxNumOfRetries = &cli.IntFlag{
		Usage: "Maximum number of retries for Redis write operations in case of conflicts",
		Name:  "redis-num-of-retries", EnvVars: env("REDIS_NUM_OF_RETRIES"),
		Value: defaultRedisTxNumOfRetries,
	}

	Network = &cli.StringFlag{
		Usage: "Bitcoin network (mainnet, testnet3, signet, regtest)",
		Name:  "network", EnvVars: env("NETWORK"),
		Value: defaultNetwork,
	}

	EsploraURL = &cli.StringFlag{
		Usage: "Esplora API URL",
		Name:  "esplora-url", EnvVars: env("ESPLORA_URL"),
		Value: defaultEsploraURL,
	}

	ExplorerRateLimit = &cli.Float64Flag{
		Usage: "Maximum number of explorer requests per second",
		Name:  "explorer-rate-limit", EnvVars: env("EXPLORER_RATE_LIMIT"),
		Value: defaultExplorerRateLimit,
	}

	BlockPollInterval = &cli.DurationFlag{
		Usage: "How often the explorer is polled for new blocks",
		Name:  "block-poll-interval", EnvVars: env("BLOCK_POLL_INTERVAL"),
		Value: defaultBlockPollInterval,
	}

	FeedType = &cli.StringFlag{
		Usage: "Primary reserve feed type (static, utxo)",
		Name:  "feed-type", EnvVars: env("FEED_TYPE"),
		Value: defaultFeedType,
	}

	FallbackFeedType = &cli.StringFlag{
		Usage: "Optional fallback reserve feed type (static, utxo)",
		Name:  "fallback-feed-type", EnvVars: env("FALLBACK_FEED_TYPE"),
	}

	StaticReserve = &cli.Int64Flag{
		Usage: "Locked reserve in sats reported by the static feed",
		Name:  "static-reserve", EnvVars: env("STATIC_RESERVE"),
	}

	FallbackReserve = &cli.Int64Flag{
		Usage: "Locked reserve in sats reported by the static fallback feed",
		Name:  "fallback-reserve", EnvVars: env("FALLBACK_RESERVE"),
	}

	ReserveAddresses = &cli.StringSliceFlag{
		Usage: "Reserve addresses watched by the utxo feed (comma-separated)",
		Name:  "reserve-address", EnvVars: env("RESERVE_ADDRESS"),
	}

	FeedTimeout = &cli.DurationFlag{
		Usage: "Timeout of every reserve feed query",
		Name:  "feed-timeout", EnvVars: env("FEED_TIMEOUT"),
		Value: defaultFeedTimeout,
	}

	FeedPrimaryTimeout = &cli.DurationFlag{
		Usage: "Timeout of the primary feed before falling back",
		Name:  "feed-primary-timeout", EnvVars: env("FEED_PRIMARY_TIMEOUT"),
		Value: defaultFeedPrimaryTimeout,
	}

	ReserveMaxSyncAge = &cli.DurationFlag{
		Usage: "Age of the last successful reserve address sync after which the utxo feed " +
			"reports itself unavailable, 0 to disable",
		Name:  "reserve-max-sync-age", EnvVars: env("RESERVE_MAX_SYNC_AGE"),
		Value: defaultReserveMaxSyncAge,
	}

	AttestationInterval = &cli.DurationFlag{
		Usage: "Interval between scheduled attestations, 0 disables them",
		Name:  "attestation-interval", EnvVars: env("ATTESTATION_INTERVAL"),
		Value: defaultAttestationInterval,
	}

	SignerKey = &cli.StringFlag{
		Usage:       "Hex encoded attestation signing key",
		Name:        "signer-key", EnvVars: env("SIGNER_KEY"),
		DefaultText: fmt.Sprintf("generated and stored at <datadir>/%s", signerKeyFile),
	}

	SettlementType = &cli.StringFlag{
		Usage: "Settlement type (simulator, htlc)",
		Name:  "settlement-type", EnvVars: env("SETTLEMENT_TYPE"),
		Value: defaultSettlementType,
	}

	RefundKey = &cli.StringFlag{
		Usage:       "Hex encoded key receiving htlc refunds",
		Name:        "htlc-refund-key", EnvVars: env("HTLC_REFUND_KEY"),
		DefaultText: fmt.Sprintf("generated and stored at <datadir>/%s", refundKeyFile),
	}

	HtlcFeeRate = &cli.Int64Flag{
		Usage: "Fee rate in sats/vbyte of htlc refund transactions",
		Name:  "htlc-fee-rate", EnvVars: env("HTLC_FEE_RATE"),
		Value: int64(defaultHtlcFeeRate),
	}

	RedemptionTimeout = &cli.DurationFlag{
		Usage: "How long a redemption can wait for the external claim",
		Name:  "redemption-timeout", EnvVars: env("REDEMPTION_TIMEOUT"),
		Value: defaultRedemptionTimeout,
	}

	RedemptionPoll = &cli.DurationFlag{
		Usage: "How often locked redemptions are observed",
		Name:  "redemption-poll-interval", EnvVars: env("REDEMPTION_POLL_INTERVAL"),
		Value: defaultRedemptionPoll,
	}

	RedemptionMinAmount = &cli.Int64Flag{
		Usage:       "The minimum amount of tokens of a single redemption",
		Name:        "redemption-min-amount", EnvVars: env("REDEMPTION_MIN_AMOUNT"),
		Value:       int64(defaultRedemptionMinAmount),
		DefaultText: "0 unset",
	}

	RedemptionMaxAmount = &cli.Int64Flag{
		Usage:       "The maximum amount of tokens of a single redemption",
		Name:        "redemption-max-amount", EnvVars: env("REDEMPTION_MAX_AMOUNT"),
		Value:       int64(defaultRedemptionMaxAmount),
		DefaultText: "-1 unset",
	}

	SimulatorAutoConfirm = &cli.DurationFlag{
		Usage: "Delay after which the simulator confirms locks, 0 disables it",
		Name:  "simulator-auto-confirm", EnvVars: env("SIMULATOR_AUTO_CONFIRM"),
	}

	AlertManagerURL = &cli.StringFlag{
		Usage: "",
		Name:  "alert-manager-url", EnvVars: env("ALERT_MANAGER_URL"),
	}

	EnablePprof = &cli.BoolFlag{
		Usage: "",
		Name:  "enable-pprof", EnvVars: env("ENABLE_PPROF"),
		Value: defaultEnablePprof,
	}
)

var Flags = []cli.Flag{
	Datadir,
	Port,
	AdminPort,
	AdminToken,
	LogLevel,
	DbType,
	DbUrl,
	EventDbType,
	EventDbUrl,
	LiveStoreType,
	RedisUrl,
	RedisTxNumOfRetries,
	Network,
	EsploraURL,
	ExplorerRateLimit,
	BlockPollInterval,
	FeedType,
	FallbackFeedType,
	StaticReserve,
	FallbackReserve,
	ReserveAddresses,
	FeedTimeout,
	FeedPrimaryTimeout,
	ReserveMaxSyncAge,
	AttestationInterval,
	SignerKey,
	SettlementType,
	RefundKey,
	HtlcFeeRate,
	RedemptionTimeout,
	RedemptionPoll,
	RedemptionMinAmount,
	RedemptionMaxAmount,
	SimulatorAutoConfirm,
	AlertManagerURL,
	EnablePprof,
}

func LoadConfig(c *cli.Context) (*Config, error) {
	if err := initDatadir(c); err != nil {
		return nil, fmt.Errorf("failed to create datadir: %s", err)
	}

	dbPath := filepath.Join(c.String(Datadir.Name), "db")

	var eventDbUrl string
	if c.String(EventDbType.Name) == "postgres" {
		eventDbUrl = c.String(EventDbUrl.Name)
		if eventDbUrl == "" {
			return nil, fmt.Errorf("event db type set to 'postgres' but event db url is missing")
		}
	}

	var dbUrl string
	if c.String(DbType.Name) == "postgres" {
		dbUrl = c.String(DbUrl.Name)
		if dbUrl == "" {
			return nil, fmt.Errorf("db type set to 'postgres' but db url is missing")
		}
	}

	var redisUrl string
	if c.String(LiveStoreType.Name) == "redis" {
		redisUrl = c.String(RedisUrl.Name)
		if redisUrl == "" {
			return nil, fmt.Errorf("live store type set to 'redis' but redis url is missing")
		}
	}

	// In case the admin port is unset, fallback to service port.
	adminPort := c.Uint(AdminPort.Name)
	if adminPort == 0 {
		adminPort = c.Uint(Port.Name)
	}

	return &Config{
		Datadir:              c.String(Datadir.Name),
		Port:                 uint32(c.Uint(Port.Name)),
		AdminPort:            uint32(adminPort),
		AdminToken:           c.String(AdminToken.Name),
		LogLevel:             c.Int(LogLevel.Name),
		EnablePprof:          c.Bool(EnablePprof.Name),
		DbType:               c.String(DbType.Name),
		EventDbType:          c.String(EventDbType.Name),
		DbDir:                dbPath,
		DbUrl:                dbUrl,
		EventDbUrl:           eventDbUrl,
		LiveStoreType:        c.String(LiveStoreType.Name),
		RedisUrl:             redisUrl,
		RedisTxNumOfRetries:  c.Int(RedisTxNumOfRetries.Name),
		Network:              c.String(Network.Name),
		EsploraURL:           c.String(EsploraURL.Name),
		ExplorerRateLimit:    c.Float64(ExplorerRateLimit.Name),
		BlockPollInterval:    c.Duration(BlockPollInterval.Name),
		FeedType:             c.String(FeedType.Name),
		FallbackFeedType:     c.String(FallbackFeedType.Name),
		StaticReserve:        c.Int64(StaticReserve.Name),
		FallbackReserve:      c.Int64(FallbackReserve.Name),
		ReserveAddresses:     c.StringSlice(ReserveAddresses.Name),
		FeedTimeout:          c.Duration(FeedTimeout.Name),
		FeedPrimaryTimeout:   c.Duration(FeedPrimaryTimeout.Name),
		ReserveMaxSyncAge:    c.Duration(ReserveMaxSyncAge.Name),
		AttestationInterval:  c.Duration(AttestationInterval.Name),
		SignerKey:            c.String(SignerKey.Name),
		SettlementType:       c.String(SettlementType.Name),
		RefundKey:            c.String(RefundKey.Name),
		HtlcFeeRate:          c.Int64(HtlcFeeRate.Name),
		RedemptionTimeout:    c.Duration(RedemptionTimeout.Name),
		RedemptionPoll:       c.Duration(RedemptionPoll.Name),
		RedemptionMinAmount:  c.Int64(RedemptionMinAmount.Name),
		RedemptionMaxAmount:  c.Int64(RedemptionMaxAmount.Name),
		SimulatorAutoConfirm: c.Duration(SimulatorAutoConfirm.Name),
		AlertManagerURL:      c.String(AlertManagerURL.Name),
	}, nil
}

func initDatadir(c *cli.Context) error {
	datadir := c.String(Datadir.Name)
	return makeDirectoryIfNotExists(datadir)
}

func makeDirectoryIfNotExists(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.MkdirAll(path, os.ModeDir|0o755)
	}
	return nil
}

func (c *Config) Validate() error {
	if !supportedEventDbs.supports(c.EventDbType) {
		return fmt.Errorf(
			"event db type not supported, please select one of: %s",
			supportedEventDbs,
		)
	}
	if !supportedDbs.supports(c.DbType) {
		return fmt.Errorf("db type not supported, please select one of: %s", supportedDbs)
	}
	if !supportedFeeds.supports(c.FeedType) {
		return fmt.Errorf("feed type not supported, please select one of: %s", supportedFeeds)
	}
	if len(c.FallbackFeedType) > 0 {
		if !supportedFeeds.supports(c.FallbackFeedType) {
			return fmt.Errorf(
				"fallback feed type not supported, please select one of: %s",
				supportedFeeds,
			)
		}
		if c.FallbackFeedType == c.FeedType {
			return fmt.Errorf("fallback feed type must differ from feed type")
		}
	}
	if !supportedSettlements.supports(c.SettlementType) {
		return fmt.Errorf(
			"settlement type not supported, please select one of: %s",
			supportedSettlements,
		)
	}
	if len(c.LiveStoreType) > 0 && !supportedLiveStores.supports(c.LiveStoreType) {
		return fmt.Errorf(
			"live store type not supported, please select one of: %s",
			supportedLiveStores,
		)
	}
	network, ok := supportedNetworks[c.Network]
	if !ok {
		return fmt.Errorf("unknown network %s", c.Network)
	}
	c.network = network

	if c.StaticReserve < 0 || c.FallbackReserve < 0 {
		return fmt.Errorf("static reserve must not be negative")
	}
	if c.FeedTimeout <= 0 {
		return fmt.Errorf("invalid feed timeout, must be greater than 0")
	}
	if c.ReserveMaxSyncAge < 0 {
		return fmt.Errorf("invalid reserve max sync age, must not be negative")
	}
	if c.AttestationInterval < 0 {
		return fmt.Errorf("invalid attestation interval, must not be negative")
	}
	if c.RedemptionTimeout < time.Minute {
		return fmt.Errorf("invalid redemption timeout, must be at least 1 minute")
	}
	if c.RedemptionPoll <= 0 {
		return fmt.Errorf("invalid redemption poll interval, must be greater than 0")
	}
	if c.RedemptionMinAmount < 0 {
		return fmt.Errorf("redemption min amount must not be negative")
	}
	if c.RedemptionMaxAmount >= 0 && c.RedemptionMaxAmount < c.RedemptionMinAmount {
		return fmt.Errorf("redemption max amount must be greater than min amount")
	}
	if c.HtlcFeeRate <= 0 {
		return fmt.Errorf("htlc fee rate must be greater than 0")
	}

	if err := c.repoManager(); err != nil {
		return err
	}
	if err := c.explorerService(); err != nil {
		return err
	}
	if err := c.feedService(); err != nil {
		return err
	}
	if err := c.signerService(); err != nil {
		return err
	}
	if err := c.settlementService(); err != nil {
		return err
	}
	if err := c.liveStoreService(); err != nil {
		return err
	}
	if err := c.schedulerService(); err != nil {
		return err
	}
	if err := c.blockNotifierService(); err != nil {
		return err
	}
	if err := c.alertsService(); err != nil {
		return err
	}
	c.metricsService()
	return nil
}

func (c *Config) AppService() (application.Service, error) {
	if c.svc == nil {
		if err := c.appService(); err != nil {
			return nil, err
		}
	}
	return c.svc, nil
}

func (c *Config) SignerService() (ports.SignerService, error) {
	if err := c.signerService(); err != nil {
		return nil, err
	}
	return c.signer, nil
}

func (c *Config) MetricsGatherer() prometheus.Gatherer {
	c.metricsService()
	return c.registry
}

func (c *Config) repoManager() error {
	if c.repo != nil {
		return nil
	}

	var eventStoreConfig []interface{}
	var dataStoreConfig []interface{}
	logger := log.New()

	switch c.EventDbType {
	case "inmemory":
		eventStoreConfig = nil
	case "postgres":
		eventStoreConfig = []interface{}{c.EventDbUrl, true}
	default:
		return fmt.Errorf("unknown event db type")
	}

	switch c.DbType {
	case "badger":
		dataStoreConfig = []interface{}{c.DbDir, logger}
	case "sqlite":
		dataStoreConfig = []interface{}{c.DbDir}
	case "postgres":
		dataStoreConfig = []interface{}{c.DbUrl, true}
	default:
		return fmt.Errorf("unknown db type")
	}

	if c.DbType != "postgres" {
		if err := makeDirectoryIfNotExists(c.DbDir); err != nil {
			return fmt.Errorf("failed to create db dir: %s", err)
		}
	}

	svc, err := db.NewService(db.ServiceConfig{
		EventStoreType:   c.EventDbType,
		DataStoreType:    c.DbType,
		EventStoreConfig: eventStoreConfig,
		DataStoreConfig:  dataStoreConfig,
	})
	if err != nil {
		return err
	}

	c.repo = svc
	return nil
}

func (c *Config) explorerService() error {
	if c.explorer != nil {
		return nil
	}
	// The explorer is only needed by the utxo feed and the htlc settlement.
	if c.FeedType != "utxo" && c.FallbackFeedType != "utxo" && c.SettlementType != "htlc" {
		return nil
	}

	opts := make([]esploraexplorer.Option, 0)
	if c.ExplorerRateLimit > 0 {
		burst := int(c.ExplorerRateLimit) / 2
		if burst < 1 {
			burst = 1
		}
		opts = append(opts, esploraexplorer.WithRateLimit(c.ExplorerRateLimit, burst))
	}
	svc, err := esploraexplorer.NewExplorer(c.EsploraURL, opts...)
	if err != nil {
		return err
	}

	c.explorer = svc
	return nil
}

func (c *Config) feedService() error {
	if c.feed != nil {
		return nil
	}

	primary, err := c.newFeed(c.FeedType, c.StaticReserve)
	if err != nil {
		return err
	}
	if len(c.FallbackFeedType) <= 0 {
		c.feed = primary
		return nil
	}

	fallback, err := c.newFeed(c.FallbackFeedType, c.FallbackReserve)
	if err != nil {
		return err
	}
	svc, err := fallbackfeed.NewFeed(
		primary, fallback, fallbackfeed.WithPrimaryTimeout(c.FeedPrimaryTimeout),
	)
	if err != nil {
		return err
	}

	c.feed = svc
	return nil
}

func (c *Config) newFeed(feedType string, staticReserve int64) (ports.ReserveFeed, error) {
	switch feedType {
	case "static":
		return staticfeed.NewFeed(big.NewInt(staticReserve))
	case "utxo":
		for _, addr := range c.ReserveAddresses {
			if _, err := btcutil.DecodeAddress(addr, c.network); err != nil {
				return nil, fmt.Errorf("invalid reserve address %s: %s", addr, err)
			}
		}
		feed, err := utxofeed.NewFeed(
			c.explorer, c.repo.Utxos(), c.ReserveAddresses,
			utxofeed.WithMaxSyncAge(c.ReserveMaxSyncAge),
		)
		if err != nil {
			return nil, err
		}
		return feed, nil
	default:
		return nil, fmt.Errorf("unknown feed type")
	}
}

func (c *Config) signerService() error {
	if c.signer != nil {
		return nil
	}

	key, err := c.loadKey(c.SignerKey, signerKeyFile)
	if err != nil {
		return fmt.Errorf("failed to load signer key: %s", err)
	}
	svc, err := signerclient.NewSigner(key)
	if err != nil {
		return err
	}

	c.signer = svc
	return nil
}

func (c *Config) settlementService() error {
	if c.settlement != nil {
		return nil
	}

	var svc ports.SettlementService
	switch c.SettlementType {
	case "simulator":
		log.Warn("using simulated settlement, redemptions never move real funds")
		opts := make([]simulator.Option, 0)
		if c.SimulatorAutoConfirm > 0 {
			opts = append(opts, simulator.WithAutoConfirm(c.SimulatorAutoConfirm))
		}
		svc = simulator.NewSimulator(opts...)
	case "htlc":
		key, err := c.loadKey(c.RefundKey, refundKeyFile)
		if err != nil {
			return fmt.Errorf("failed to load refund key: %s", err)
		}
		svc, err = htlc.NewService(
			c.explorer, c.network, key, htlc.WithFeeRate(c.HtlcFeeRate),
		)
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown settlement type")
	}

	c.settlement = svc
	return nil
}

func (c *Config) loadKey(keyHex, filename string) (*btcec.PrivateKey, error) {
	if keyHex != "" {
		return signerclient.ParseKey(keyHex)
	}
	return signerclient.LoadOrCreateKey(filepath.Join(c.Datadir, filename))
}

func (c *Config) liveStoreService() error {
	if c.liveStore != nil {
		return nil
	}

	var liveStoreSvc ports.LiveStore
	switch c.LiveStoreType {
	case "inmemory", "":
		liveStoreSvc = inmemorylivestore.NewLiveStore()
	case "redis":
		redisOpts, err := redis.ParseURL(c.RedisUrl)
		if err != nil {
			return fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		rdb := redis.NewClient(redisOpts)
		liveStoreSvc = redislivestore.NewLiveStore(rdb, c.RedisTxNumOfRetries)
	default:
		return fmt.Errorf("unknown liveStore type")
	}

	c.liveStore = liveStoreSvc
	return nil
}

func (c *Config) schedulerService() error {
	if c.scheduler != nil {
		return nil
	}
	c.scheduler = timescheduler.NewScheduler()
	return nil
}

func (c *Config) blockNotifierService() error {
	if c.blocks != nil || c.explorer == nil {
		return nil
	}

	svc, err := blockscheduler.NewBlockNotifier(
		c.explorer, blockscheduler.WithTickerInterval(c.BlockPollInterval),
	)
	if err != nil {
		return err
	}

	c.blocks = svc
	return nil
}

func (c *Config) alertsService() error {
	if c.AlertManagerURL == "" {
		return nil
	}

	c.alerts = alertsmanager.NewService(c.AlertManagerURL, c.EsploraURL)
	return nil
}

func (c *Config) metricsService() {
	if c.registry != nil {
		return
	}

	c.registry = prometheus.NewRegistry()
	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	c.metrics = telemetry.NewMetrics(c.registry)
}

func (c *Config) appService() error {
	if err := c.Validate(); err != nil {
		return err
	}

	var minAmount, maxAmount *big.Int
	if c.RedemptionMinAmount > 0 {
		minAmount = big.NewInt(c.RedemptionMinAmount)
	}
	if c.RedemptionMaxAmount >= 0 {
		maxAmount = big.NewInt(c.RedemptionMaxAmount)
	}

	svc, err := application.NewService(
		c.repo, c.feed, c.settlement, c.signer, c.scheduler, c.blocks,
		c.liveStore, c.alerts, c.metrics,
		application.Config{
			FeedTimeout:         c.FeedTimeout,
			AttestationInterval: c.AttestationInterval,
			Redemption: application.RedemptionConfig{
				Network:      c.network,
				Timeout:      c.RedemptionTimeout,
				PollInterval: c.RedemptionPoll,
				MinAmount:    minAmount,
				MaxAmount:    maxAmount,
			},
		},
	)
	if err != nil {
		return err
	}

	c.svc = svc
	return nil
}

type supportedType map[string]struct{}

func (t supportedType) String() string {
	types := make([]string, 0, len(t))
	for tt := range t {
		types = append(types, tt)
	}
	return strings.Join(types, " | ")
}

func (t supportedType) supports(typeStr string) bool {
	_, ok := t[typeStr]
	return ok
}
