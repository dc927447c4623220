package main

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/danmuck/telectl/internal/config"
	"github.com/danmuck/telectl/internal/node"
	"github.com/danmuck/telectl/internal/protocol/schema"
	"github.com/danmuck/telectl/internal/router"
)

var emitCmd = &cobra.Command{
	Use:   "emit",
	Short: "Log synthetic GPS, IMU, battery and system measurements from a board.",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")
		count, _ := cmd.Flags().GetInt("count")
		interval, _ := cmd.Flags().GetDuration("interval")

		cfg, err := config.Load(path)
		if err != nil {
			return err
		}
		n, err := node.Build(cfg)
		if err != nil {
			return err
		}
		defer n.Close()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		sim := newSimulator(time.Now().UnixNano())
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for i := 0; count <= 0 || i < count; i++ {
			if err := sim.step(n.Router()); err != nil {
				log.Warn().Err(err).Int("round", i).Msg("emit failed")
			}
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
		}
		st := n.Status()
		fmt.Fprintf(cmd.OutOrStdout(), "logged=%d transmitted=%d errors=%d\n",
			st.Router.Logged, st.Router.Transmitted, st.Router.Errors)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(emitCmd)
	emitCmd.Flags().String("config", "board.toml", "board config path")
	emitCmd.Flags().Int("count", 10, "rounds to emit, 0 runs until interrupted")
	emitCmd.Flags().Duration("interval", time.Second, "delay between rounds")
}

// simulator produces plausible readings for one flight.
type simulator struct {
	rng     *rand.Rand
	t       float64
	lat     float64
	lon     float64
	alt     float64
	voltage float64
}

func newSimulator(seed int64) *simulator {
	return &simulator{rng: rand.New(rand.NewSource(seed)), lat: 43.0731, lon: -89.4012, alt: 260, voltage: 12.6}
}

func (s *simulator) noise(scale float64) float32 {
	return float32(s.rng.NormFloat64() * scale)
}

func (s *simulator) step(r *router.Router) error {
	s.t++
	s.alt += 15 + float64(s.noise(2))
	s.lat += 0.0001
	s.voltage = math.Max(10.5, s.voltage-0.002)

	if err := router.LogValues(r, schema.GPSData, float32(s.lat), float32(s.lon), float32(s.alt)); err != nil {
		return fmt.Errorf("gps: %w", err)
	}
	if err := router.LogValues(r, schema.IMUData,
		s.noise(0.1), s.noise(0.1), 9.81+s.noise(0.2),
		s.noise(0.01), s.noise(0.01), s.noise(0.01),
	); err != nil {
		return fmt.Errorf("imu: %w", err)
	}
	charge := float32(100 * (s.voltage - 10.5) / 2.1)
	if err := router.LogValues(r, schema.BatteryStatus, float32(s.voltage), charge); err != nil {
		return fmt.Errorf("battery: %w", err)
	}
	status := []uint8{1, 0, uint8(int(s.t) % 256), 0, 0, 0, 0, 0}
	if err := router.LogValues(r, schema.SystemStatus, status...); err != nil {
		return fmt.Errorf("system: %w", err)
	}
	return nil
}
