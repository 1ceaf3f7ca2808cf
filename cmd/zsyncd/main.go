package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/shielded-wallet/zsyncd/config"
	"github.com/shielded-wallet/zsyncd/internal/core/application/adapter"
	"github.com/shielded-wallet/zsyncd/internal/core/application/keystore"
	"github.com/shielded-wallet/zsyncd/internal/core/domain"
	"github.com/shielded-wallet/zsyncd/internal/core/ports"
	"github.com/shielded-wallet/zsyncd/internal/infrastructure/lightwalletd"
	"github.com/shielded-wallet/zsyncd/internal/infrastructure/secretstore"
	httpinterface "github.com/shielded-wallet/zsyncd/internal/interfaces/http"
	"github.com/shielded-wallet/zsyncd/pkg/wallet"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"

	app = &cobra.Command{
		Use:           "zsyncd",
		Short:         "shielded wallet sync daemon",
		Long:          "zsyncd keeps the shielded wallet accounts of a seed in sync with a lightwalletd server and exposes their balances over HTTP",
		Version:       formatVersion(),
		RunE:          action,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	f := app.Flags()
	f.String("datadir", config.GetString(config.DatadirKey), "the data directory of the daemon")
	f.String("network", config.GetString(config.NetworkKey), "the network to sync: mainnet or testnet")
	f.Int("log-level", config.GetInt(config.LogLevelKey), "logrus level, from 0 (panic) to 6 (trace)")
	f.String("endpoint", config.GetString(config.EndpointAddrKey), "host:port of the lightwalletd server")
	f.Bool("endpoint-tls", config.GetBool(config.EndpointTLSKey), "connect to the lightwalletd server over TLS")
	f.String("http-addr", config.GetString(config.HTTPListenAddrKey), "listening address of the HTTP interface")
	f.String("accounts", config.GetString(config.AccountsKey), "comma separated indexes of the accounts to sync")
	f.String("password-file", config.GetString(config.PasswordFileKey), "file containing the password of the secret store")

	for name, key := range map[string]string{
		"datadir":       config.DatadirKey,
		"network":       config.NetworkKey,
		"log-level":     config.LogLevelKey,
		"endpoint":      config.EndpointAddrKey,
		"endpoint-tls":  config.EndpointTLSKey,
		"http-addr":     config.HTTPListenAddrKey,
		"accounts":      config.AccountsKey,
		"password-file": config.PasswordFileKey,
	} {
		if err := config.BindFlag(key, f.Lookup(name)); err != nil {
			log.WithError(err).Fatalf("failed to bind flag %s", name)
		}
	}
}

func main() {
	if err := app.Execute(); err != nil {
		log.Fatal(err)
	}
}

func action(cmd *cobra.Command, args []string) error {
	if err := config.Init(); err != nil {
		return err
	}
	log.SetLevel(config.GetLogLevel())

	network, err := config.GetNetwork()
	if err != nil {
		return err
	}

	secrets, err := openSecretStore()
	if err != nil {
		return err
	}
	defer secrets.Close()

	words, birthday, err := loadWords(secrets)
	if err != nil {
		return err
	}

	source, err := lightwalletd.NewService(config.GetEndpointOpts())
	if err != nil {
		return fmt.Errorf("failed to connect to lightwalletd: %w", err)
	}
	defer source.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	manager, err := newManager(network, source, words, birthday, registry)
	if err != nil {
		return err
	}
	defer manager.Close()

	httpSvc, err := httpinterface.NewService(httpinterface.Opts{
		Addr:     config.GetString(config.HTTPListenAddrKey),
		Manager:  manager,
		Gatherer: registry,
	})
	if err != nil {
		return err
	}
	if err := httpSvc.Start(); err != nil {
		return err
	}
	defer httpSvc.Stop()

	if err := manager.StartAll(); err != nil {
		return err
	}

	log.Infof("zsyncd started on %s", network.Name)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	<-sigChan

	log.Info("shutting down daemon")
	return nil
}

func openSecretStore() (*secretstore.Store, error) {
	password, err := config.GetPassword()
	if err != nil {
		return nil, err
	}

	store, err := secretstore.NewStore(config.GetSecretsDir())
	if err != nil {
		return nil, fmt.Errorf("failed to open secret store: %w", err)
	}
	if err := store.Unlock(password); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to unlock secret store: %w", err)
	}
	return store, nil
}

// loadWords returns the mnemonic of the wallet and its birthday. At first
// run, the mnemonic is taken from config and saved into the secret store.
func loadWords(store ports.SecretStore) ([]string, uint64, error) {
	wm, err := keystore.NewWordsManager(store)
	if err != nil {
		return nil, 0, err
	}

	words, err := wm.Words()
	if err != nil {
		return nil, 0, err
	}
	if words != nil {
		birthday, err := wm.Birthday()
		if err != nil {
			return nil, 0, err
		}
		return words, birthday, nil
	}

	words = config.GetMnemonic()
	if len(words) <= 0 {
		return nil, 0, fmt.Errorf(
			"wallet not initialized, run 'zsync init' or set ZSYNC_%s",
			config.MnemonicKey,
		)
	}
	config.ClearMnemonic()

	birthday := config.GetUint64(config.BirthdayHeightKey)
	if err := wm.Save(words, birthday); err != nil {
		return nil, 0, err
	}
	log.Info("wallet mnemonic saved into secret store")
	return words, birthday, nil
}

func newManager(
	network *wallet.Network, source ports.BlockSource,
	words []string, birthday uint64, registry prometheus.Registerer,
) (*adapter.Manager, error) {
	accounts, err := config.GetAccounts()
	if err != nil {
		return nil, err
	}

	manager := adapter.NewManager(log.StandardLogger())
	for _, index := range accounts {
		id := fmt.Sprintf("%d", index)
		account := domain.NewMnemonicAccount(
			id, fmt.Sprintf("account %d", index), words, "",
		)
		account.BirthdayHeight = birthday

		a, err := adapter.New(account, adapter.Opts{
			Network:      network,
			Datadir:      config.GetDatadir(),
			Source:       source,
			AccountIndex: index,
			Config:       config.GetSynchronizerConfig(),
			Logger:       log.StandardLogger(),
			Registerer:   registry,
		})
		if err != nil {
			manager.Close()
			return nil, fmt.Errorf("failed to load account %d: %w", index, err)
		}
		if err := manager.Add(a); err != nil {
			a.Close()
			manager.Close()
			return nil, err
		}
		log.Debugf("loaded account %d (%s)", index, a.Fingerprint())
	}
	return manager, nil
}

func formatVersion() string {
	return fmt.Sprintf(
		"Version: %s\nCommit: %s\nDate: %s",
		version, commit, date,
	)
}
