package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cutiefunny/musclecat/internal/adapters/blobstore"
	"github.com/cutiefunny/musclecat/internal/adapters/clock"
	"github.com/cutiefunny/musclecat/internal/adapters/mqttbus"
	"github.com/cutiefunny/musclecat/internal/modules/commandchannel"
	"github.com/cutiefunny/musclecat/internal/modules/libraryadmin"
	"github.com/cutiefunny/musclecat/internal/modules/librarysync"
	"github.com/cutiefunny/musclecat/internal/modules/statusmirror"
	"github.com/cutiefunny/musclecat/internal/ports"
	"github.com/cutiefunny/musclecat/pkg/jukebox"
)

type app struct {
	bus       *mqttbus.Client
	library   *librarysync.Engine
	admin     *libraryadmin.Admin
	sender    *commandchannel.Sender
	monitor   *statusmirror.Monitor
	branch    string
	topicBase string
	timeout   time.Duration
}

type appKey struct{}

func fromContext(cmd *cobra.Command) *app {
	return cmd.Context().Value(appKey{}).(*app)
}

// settle gives the broker time to deliver retained documents after a
// fresh subscription.
func (a *app) settle() {
	time.Sleep(a.timeout / 4)
}

func (a *app) findSong(songID string) (jukebox.Song, error) {
	for _, song := range a.library.Songs() {
		if song.ID == songID {
			return song, nil
		}
	}
	return jukebox.Song{}, fmt.Errorf("song %s not found on %s", songID, a.branch)
}

func main() {
	root := &cobra.Command{
		Use:           "jukebox",
		Short:         "Jukebox admin CLI",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var (
		broker    string
		topicBase string
		branch    string
		blobBase  string
		legacy    bool
		timeout   time.Duration
		tlsCA     string
		tlsCert   string
		tlsKey    string
		userOpt   string
		passOpt   string
	)

	root.PersistentFlags().StringVarP(&broker, "broker", "b", "", "MQTT broker URL")
	root.PersistentFlags().StringVar(&topicBase, "topic-base", jukebox.BaseTopic, "topic base")
	root.PersistentFlags().StringVar(&branch, "branch", jukebox.DefaultBranch, "target branch (branch1|branch2)")
	root.PersistentFlags().StringVar(&blobBase, "blob-base", "", "audio object host base URL")
	root.PersistentFlags().BoolVar(&legacy, "legacy", false, "merge the legacy song collection (branch2 only)")
	root.PersistentFlags().DurationVarP(&timeout, "timeout", "t", 2*time.Second, "operation timeout")
	root.PersistentFlags().StringVar(&tlsCA, "tls-ca", "", "TLS CA path")
	root.PersistentFlags().StringVar(&tlsCert, "tls-cert", "", "TLS cert path")
	root.PersistentFlags().StringVar(&tlsKey, "tls-key", "", "TLS key path")
	root.PersistentFlags().StringVar(&userOpt, "user", "", "MQTT username")
	root.PersistentFlags().StringVar(&passOpt, "pass", "", "MQTT password")

	root.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		if broker == "" {
			broker = os.Getenv("JUKEBOX_BROKER")
		}
		if broker == "" {
			return errors.New("broker is required (set --broker or JUKEBOX_BROKER)")
		}
		if branch != jukebox.Branch1 && branch != jukebox.Branch2 {
			return fmt.Errorf("unknown branch %q", branch)
		}

		bus, err := mqttbus.NewClient(mqttbus.Options{
			BrokerURL: broker,
			ClientID:  fmt.Sprintf("jukebox-cli-%d", time.Now().UnixNano()),
			Username:  userOpt,
			Password:  passOpt,
			TLSCA:     tlsCA,
			TLSCert:   tlsCert,
			TLSKey:    tlsKey,
			Timeout:   timeout,
		})
		if err != nil {
			return err
		}

		log := zap.NewNop()
		library := librarysync.New(log, bus, topicBase, legacy)
		if err := library.SwitchBranch(branch); err != nil {
			return err
		}

		var blobs ports.BlobStore
		if blobBase == "" {
			blobBase = os.Getenv("JUKEBOX_BLOB_BASE")
		}
		if blobBase != "" {
			if blobs, err = blobstore.NewHTTPStore(blobBase); err != nil {
				return err
			}
		}

		clk := clock.New()
		a := &app{
			bus:       bus,
			library:   library,
			admin:     libraryadmin.New(log, bus, blobs, noopCache{}, clk, topicBase, library),
			sender:    commandchannel.NewSender(log, bus, topicBase, clk),
			monitor:   statusmirror.NewMonitor(log, bus, topicBase),
			branch:    branch,
			topicBase: topicBase,
			timeout:   timeout,
		}
		// A library update while an edit is open abandons the edit:
		// the row may have moved or vanished under it.
		library.SetOnUpdate(func([]jukebox.Song) { a.admin.CancelEdit() })

		cmd.SetContext(context.WithValue(cmd.Context(), appKey{}, a))
		return nil
	}

	root.PersistentPostRun = func(cmd *cobra.Command, _ []string) {
		if a, ok := cmd.Context().Value(appKey{}).(*app); ok {
			a.bus.Close()
		}
	}

	root.AddCommand(
		lsCommand(),
		uploadCommand(),
		editCommand(),
		moveCommand(),
		rmCommand(),
		sendCommand(),
		statusCommand(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// noopCache stands in for the device-local audio cache, which does not
// exist on the admin console.
type noopCache struct{}

func (noopCache) Get(string) ([]byte, bool)                      { return nil, false }
func (noopCache) Put(string, []byte)                             {}
func (noopCache) Remove(string)                                  {}
func (noopCache) ListIDs() []string                              { return nil }
func (noopCache) DownloadAndCache(context.Context, jukebox.Song) {}
