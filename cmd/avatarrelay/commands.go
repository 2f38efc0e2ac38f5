package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/opd-ai/avatarrelay"
	"github.com/opd-ai/avatarrelay/config"
	"github.com/opd-ai/avatarrelay/negotiate"
	"github.com/opd-ai/avatarrelay/provision"
	"github.com/opd-ai/avatarrelay/room/wsroom"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

const playgroundURL = "https://playground.videosdk.live"

func playgroundLink(token, roomID string) string {
	q := url.Values{}
	q.Set("token", token)
	q.Set("meetingId", roomID)
	return playgroundURL + "?" + q.Encode()
}

func newProvisioner(cfg *config.Config) (*provision.Provisioner, error) {
	return provision.New(provision.Config{
		Endpoint:  cfg.RoomServiceEndpoint,
		APIKey:    cfg.RoomServiceAPIKey,
		Secret:    cfg.RoomServiceSecret,
		AuthToken: cfg.RoomServiceAuthToken,
	})
}

func newProvisionCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "provision",
		Short: "Create a room and mint agent and backend tokens",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			p, err := newProvisioner(cfg)
			if err != nil {
				return err
			}

			creds, err := p.Provision(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Room:          %s\n", creds.RoomID)
			fmt.Fprintf(out, "Agent token:   %s\n", creds.AgentToken)
			fmt.Fprintf(out, "Backend token: %s\n", creds.BackendToken)
			fmt.Fprintf(out, "Playground:    %s\n", playgroundLink(creds.AgentToken, creds.RoomID))
			return nil
		},
	}
}

func newRoomCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "room",
		Short: "Create a playground room with the playground auth token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(v)
			if err != nil {
				return err
			}
			if err := config.Require(map[string]string{
				"VIDEOSDK_API_ENDPOINT": cfg.RoomServiceEndpoint,
				"VIDEOSDK_AUTH_TOKEN":   cfg.PlaygroundAuthToken,
			}); err != nil {
				return err
			}
			rooms, err := provision.NewRoomClient(cfg.RoomServiceEndpoint, nil)
			if err != nil {
				return err
			}

			roomID, err := rooms.CreateRoom(cmd.Context(), cfg.PlaygroundAuthToken)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), playgroundLink(cfg.PlaygroundAuthToken, roomID))
			return nil
		},
	}
}

type sessionFlags struct {
	faceID        string
	width         int
	height        int
	backgroundURL string
	pcmFile       string
}

func newSessionCmd(v *viper.Viper) *cobra.Command {
	var flags sessionFlags

	cmd := &cobra.Command{
		Use:   "session",
		Short: "Run an avatar session over the websocket media bridge",
		Long: `Run an avatar session over the websocket media bridge.

The session provisions a room, starts the avatar backend, waits for it to
join and publishes its audio and video through the bridge until
interrupted. With --pcm, the file is sent to the avatar as speech
(48 kHz mono s16le).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			return runSession(cmd.Context(), cfg, flags)
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&flags.faceID, "face-id", "", "Avatar face identifier")
	fs.IntVar(&flags.width, "width", negotiate.DefaultWidth, "Avatar video width")
	fs.IntVar(&flags.height, "height", negotiate.DefaultHeight, "Avatar video height")
	fs.StringVar(&flags.backgroundURL, "background-url", "", "Custom background image URL")
	fs.StringVar(&flags.pcmFile, "pcm", "", "Raw PCM file to speak once the session is ready")
	_ = cmd.MarkFlagRequired("face-id")
	return cmd
}

func runSession(ctx context.Context, cfg *config.Config, flags sessionFlags) error {
	if err := config.Require(map[string]string{"AVATARRELAY_BRIDGE_URL": cfg.BridgeURL}); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	serveMetrics(ctx, cfg.MetricsAddr)

	info := negotiate.VideoInfo{
		AvatarFaceID: flags.faceID,
		Width:        flags.width,
		Height:       flags.height,
	}
	if flags.backgroundURL != "" {
		info.BackgroundURL = &flags.backgroundURL
	}

	bridge, err := wsroom.New(wsroom.Config{URL: cfg.BridgeURL})
	if err != nil {
		return err
	}
	avatar, err := avatarrelay.New(cfg, bridge, info)
	if err != nil {
		return err
	}
	defer avatar.Close()

	if err := avatar.Connect(ctx); err != nil {
		return err
	}

	if flags.pcmFile != "" {
		pcm, err := os.ReadFile(flags.pcmFile)
		if err != nil {
			return fmt.Errorf("failed to read PCM file: %w", err)
		}
		avatar.HandleAudioInput(pcm)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return bridge.Publish(gctx, avatar.AudioTrack(), avatar.VideoTrack())
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
		case <-avatar.Done():
		}
		cancel()
		logrus.WithFields(logrus.Fields{
			"function":   "runSession",
			"session_id": avatar.SessionID(),
		}).Info("Shutting down session")
		return avatar.Close()
	})

	err = g.Wait()
	if waitErr := avatar.Wait(); waitErr != nil && !errors.Is(waitErr, context.Canceled) {
		logrus.WithFields(logrus.Fields{
			"function": "runSession",
			"error":    waitErr.Error(),
		}).Warn("Session task ended with error")
	}
	return err
}
