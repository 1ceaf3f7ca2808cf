package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/shielded-wallet/zsyncd/internal/core/application/synchronizer"
	"github.com/shielded-wallet/zsyncd/internal/infrastructure/lightwalletd"
	"github.com/shielded-wallet/zsyncd/pkg/wallet"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	// DatadirKey is the local data directory to store the internal state of daemon
	DatadirKey = "DATADIR"
	// LogLevelKey are the different logging levels. For reference on the values https://godoc.org/github.com/sirupsen/logrus#Level
	LogLevelKey = "LOG_LEVEL"
	// NetworkKey is the network to use. Either "mainnet" or "testnet"
	NetworkKey = "NETWORK"
	// EndpointAddrKey is the host:port of the lightwalletd server
	EndpointAddrKey = "ENDPOINT_ADDR"
	// EndpointTLSKey enables TLS for the connection to the lightwalletd server
	EndpointTLSKey = "ENDPOINT_TLS"
	// EndpointRateLimitKey is the max number of requests per second made to
	// the lightwalletd server, 0 means unlimited
	EndpointRateLimitKey = "ENDPOINT_RATE_LIMIT"
	// BatchSizeKey is the max number of blocks downloaded and scanned at once
	BatchSizeKey = "BATCH_SIZE"
	// PollIntervalKey is how often the chain tip is polled once synced
	PollIntervalKey = "POLL_INTERVAL"
	// ConfirmationsKey is the number of confirmations for a note to be spendable
	ConfirmationsKey = "CONFIRMATIONS"
	// RewindMarginKey is the number of extra blocks dropped below a reorg
	RewindMarginKey = "REWIND_MARGIN"
	// BirthdayHeightKey is the height the wallet starts scanning from, if
	// not known by the wallet itself
	BirthdayHeightKey = "BIRTHDAY_HEIGHT"
	RetryInitialIntervalKey = "RETRY_INITIAL_INTERVAL"
	RetryMaxIntervalKey     = "RETRY_MAX_INTERVAL"
	// TxExpiryDeltaKey is the number of blocks a broadcasted tx has to get mined
	TxExpiryDeltaKey = "TX_EXPIRY_DELTA"
	// HTTPListenAddrKey is where the HTTP interface listens on
	HTTPListenAddrKey = "HTTP_LISTEN_ADDR"
	// AccountsKey is the comma separated list of the account indexes to sync
	AccountsKey = "ACCOUNTS"
	// PasswordFileKey is the path of the file containing the password of the
	// secret store
	PasswordFileKey = "PASSWORD_FILE"
	// MnemonicKey is the mnemonic of the wallet, used only if the secret
	// store doesn't contain one yet
	MnemonicKey = "MNEMONIC"

	DbLocation      = "db"
	SecretsLocation = "secrets"
)

var vip *viper.Viper
var defaultDatadir = btcutil.AppDataDir("zsyncd", false)

func init() {
	vip = viper.New()
	vip.SetEnvPrefix("ZSYNC")
	vip.AutomaticEnv()

	vip.SetDefault(DatadirKey, defaultDatadir)
	vip.SetDefault(LogLevelKey, 4)
	vip.SetDefault(NetworkKey, wallet.MainNet.Name)
	vip.SetDefault(EndpointAddrKey, "mainnet.lightwalletd.com:9067")
	vip.SetDefault(EndpointTLSKey, true)
	vip.SetDefault(EndpointRateLimitKey, 0)
	vip.SetDefault(BatchSizeKey, synchronizer.DefaultBatchSize)
	vip.SetDefault(PollIntervalKey, synchronizer.DefaultPollInterval)
	vip.SetDefault(ConfirmationsKey, synchronizer.DefaultConfirmations)
	vip.SetDefault(RewindMarginKey, synchronizer.DefaultRewindMargin)
	vip.SetDefault(BirthdayHeightKey, 0)
	vip.SetDefault(RetryInitialIntervalKey, synchronizer.DefaultRetryInitialInterval)
	vip.SetDefault(RetryMaxIntervalKey, synchronizer.DefaultRetryMaxInterval)
	vip.SetDefault(TxExpiryDeltaKey, synchronizer.DefaultTxExpiryDelta)
	vip.SetDefault(HTTPListenAddrKey, "localhost:9068")
	vip.SetDefault(AccountsKey, "0")
}

// Init validates the current config and creates the datadir tree. It must
// be called once flags, if any, have been bound.
func Init() error {
	if err := validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := initDatadir(); err != nil {
		return fmt.Errorf("error while creating datadir: %w", err)
	}
	return nil
}

// BindFlag makes the given flag override the env var of the key.
func BindFlag(key string, flag *pflag.Flag) error {
	return vip.BindPFlag(key, flag)
}

//GetString ...
func GetString(key string) string {
	return vip.GetString(key)
}

//GetInt ...
func GetInt(key string) int {
	return vip.GetInt(key)
}

//GetUint64 ...
func GetUint64(key string) uint64 {
	return vip.GetUint64(key)
}

//GetFloat ...
func GetFloat(key string) float64 {
	return vip.GetFloat64(key)
}

//GetDuration ...
func GetDuration(key string) time.Duration {
	return vip.GetDuration(key)
}

//GetBool ...
func GetBool(key string) bool {
	return vip.GetBool(key)
}

//GetLogLevel ...
func GetLogLevel() log.Level {
	return log.Level(GetInt(LogLevelKey))
}

//GetNetwork ...
func GetNetwork() (*wallet.Network, error) {
	return wallet.NetworkByName(GetString(NetworkKey))
}

// GetDatadir returns the datadir of the configured network.
func GetDatadir() string {
	return filepath.Join(GetString(DatadirKey), GetString(NetworkKey))
}

// GetDbDir ...
func GetDbDir() string {
	return filepath.Join(GetDatadir(), DbLocation)
}

// GetSecretsDir ...
func GetSecretsDir() string {
	return filepath.Join(GetDatadir(), SecretsLocation)
}

// GetAccounts returns the parsed list of account indexes to sync.
func GetAccounts() ([]uint32, error) {
	return parseAccounts(GetString(AccountsKey))
}

// GetSynchronizerConfig ...
func GetSynchronizerConfig() synchronizer.Config {
	return synchronizer.Config{
		BatchSize:            GetUint64(BatchSizeKey),
		PollInterval:         GetDuration(PollIntervalKey),
		Confirmations:        synchronizer.Uint64(GetUint64(ConfirmationsKey)),
		RewindMargin:         GetUint64(RewindMarginKey),
		BirthdayHeight:       GetUint64(BirthdayHeightKey),
		RetryInitialInterval: GetDuration(RetryInitialIntervalKey),
		RetryMaxInterval:     GetDuration(RetryMaxIntervalKey),
		TxExpiryDelta:        GetUint64(TxExpiryDeltaKey),
	}
}

// GetEndpointOpts ...
func GetEndpointOpts() lightwalletd.Opts {
	return lightwalletd.Opts{
		Addr:      GetString(EndpointAddrKey),
		TLS:       GetBool(EndpointTLSKey),
		RateLimit: GetFloat(EndpointRateLimitKey),
	}
}

// GetPassword reads the secret store password from the configured file.
func GetPassword() (string, error) {
	path := GetString(PasswordFileKey)
	if path == "" {
		return "", fmt.Errorf("password file must not be null")
	}
	buf, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read password file: %w", err)
	}
	password := strings.TrimSpace(string(buf))
	if password == "" {
		return "", fmt.Errorf("password file %s is empty", path)
	}
	return password, nil
}

// Set a value for the given key
func Set(key string, value interface{}) {
	vip.Set(key, value)
}

// IsSet returns whether the give key is set
func IsSet(key string) bool {
	return vip.IsSet(key)
}

// GetMnemonic returns the current set mnemonic
func GetMnemonic() []string {
	return strings.Fields(vip.GetString(MnemonicKey))
}

// ClearMnemonic drops the mnemonic from the config once it's been stored.
func ClearMnemonic() {
	vip.Set(MnemonicKey, "")
}

func validate() error {
	datadir := GetString(DatadirKey)
	if len(datadir) <= 0 {
		return fmt.Errorf("datadir must not be null")
	}

	if _, err := GetNetwork(); err != nil {
		return err
	}

	if len(GetString(EndpointAddrKey)) <= 0 {
		return fmt.Errorf("endpoint address must not be null")
	}
	if GetFloat(EndpointRateLimitKey) < 0 {
		return fmt.Errorf("endpoint rate limit must not be negative")
	}

	level := GetInt(LogLevelKey)
	if level < int(log.PanicLevel) || level > int(log.TraceLevel) {
		return fmt.Errorf(
			"log level must be in range [%d, %d]", log.PanicLevel, log.TraceLevel,
		)
	}

	for _, key := range []string{
		BatchSizeKey, ConfirmationsKey, RewindMarginKey, BirthdayHeightKey,
		TxExpiryDeltaKey,
	} {
		if GetInt(key) < 0 {
			return fmt.Errorf("%s must not be negative", strings.ToLower(key))
		}
	}

	for _, key := range []string{
		PollIntervalKey, RetryInitialIntervalKey, RetryMaxIntervalKey,
	} {
		if GetDuration(key) < 0 {
			return fmt.Errorf("%s must not be negative", strings.ToLower(key))
		}
	}
	if GetDuration(RetryMaxIntervalKey) < GetDuration(RetryInitialIntervalKey) {
		return fmt.Errorf(
			"retry max interval must not be lower than retry initial interval",
		)
	}

	if _, err := GetAccounts(); err != nil {
		return err
	}
	return nil
}

func initDatadir() error {
	if err := makeDirectoryIfNotExists(GetDbDir()); err != nil {
		return err
	}
	return makeDirectoryIfNotExists(GetSecretsDir())
}

func parseAccounts(str string) ([]uint32, error) {
	fields := strings.Split(str, ",")
	accounts := make([]uint32, 0, len(fields))
	seen := make(map[uint32]struct{})

	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		index, err := strconv.ParseUint(f, 10, 31)
		if err != nil {
			return nil, fmt.Errorf("invalid account index %q", f)
		}
		if _, ok := seen[uint32(index)]; ok {
			return nil, fmt.Errorf("duplicated account index %d", index)
		}
		seen[uint32(index)] = struct{}{}
		accounts = append(accounts, uint32(index))
	}
	if len(accounts) <= 0 {
		return nil, fmt.Errorf("accounts must not be empty")
	}
	return accounts, nil
}

func makeDirectoryIfNotExists(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.MkdirAll(path, os.ModeDir|0700)
	}
	return nil
}
