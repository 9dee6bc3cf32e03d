// Command workbench is a utility around the workbench runtime bridge:
// it lists the audio and MIDI endpoints the engines would see, shows
// the effective configuration for a given source set, and runs a
// simple MIDI monitor.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/lipgloss"
	"github.com/gen2brain/malgo"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"github.com/alkime/workbench"
	"github.com/alkime/workbench/config"
	"github.com/alkime/workbench/device"
	"github.com/alkime/workbench/pkg/collections"
)

// CLI defines the workbench command structure.
type CLI struct {
	Devices DevicesCmd `cmd:"" help:"List available audio and MIDI devices"`
	Monitor MonitorCmd `cmd:"" help:"Print incoming MIDI messages"`
	Config  ConfigCmd  `cmd:"" help:"Show the effective configuration"`
}

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	defaultStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
)

// DevicesCmd lists every endpoint both native runtimes expose.
type DevicesCmd struct{}

func (dcmd *DevicesCmd) Run() error {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return fmt.Errorf("failed to initialize audio runtime: %w", err)
	}
	defer func() {
		_ = ctx.Uninit()
		ctx.Free()
	}()

	audioEnum := device.NewAudioEnumerator(ctx)
	if err := printDevices("Audio", audioEnum); err != nil {
		return err
	}

	drv, err := rtmididrv.New()
	if err != nil {
		return fmt.Errorf("failed to initialize midi runtime: %w", err)
	}
	defer drv.Close()

	return printDevices("MIDI", device.NewMIDIEnumerator(drv))
}

func printDevices(label string, enum device.Enumerator) error {
	for _, dir := range []device.Direction{device.Input, device.Output} {
		devices, err := enum.Devices(dir)
		if err != nil {
			return fmt.Errorf("failed to enumerate %s %s devices: %w", label, dir, err)
		}

		fmt.Println(titleStyle.Render(fmt.Sprintf("%s %s:", label, dir)))
		lines := collections.Apply(devices, func(info device.Info) string {
			line := fmt.Sprintf("  [%d] %s (channels: %d)", info.Index, info.Name, info.MaxChannels)
			if info.IsDefault {
				line += defaultStyle.Render("  (default)")
			}
			return line
		})
		for _, line := range lines {
			fmt.Println(line)
		}
	}
	return nil
}

// MonitorCmd prints incoming MIDI messages until interrupted.
type MonitorCmd struct {
	Input    string `flag:"" optional:"" help:"MIDI input device name (default: system default)"`
	LogLevel uint8  `flag:"" default:"2" help:"Log verbosity 0-4"`
}

func (mcmd *MonitorCmd) Run() error {
	args := []string{
		fmt.Sprintf("--log_level=%d", mcmd.LogLevel),
		"--flags=" + fmt.Sprint(config.DisableMIDIOut),
	}
	if mcmd.Input != "" {
		args = append(args, "--midi_input="+mcmd.Input)
	}

	var monitor workbench.Monitor
	session, err := workbench.Init(args, nil,
		func(input, output []workbench.Event, count int, user any) int {
			for _, ev := range input[:count] {
				fmt.Printf("%8d  %s\n", ev.Timestamp, monitor.Describe(ev))
			}
			return 0
		}, nil)
	if err != nil {
		return fmt.Errorf("failed to start midi engine: %w", err)
	}
	defer session.Deinit()

	fmt.Println("Monitoring MIDI input, press Ctrl-C to stop...")
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	return nil
}

// ConfigCmd resolves and prints the configuration a session would see.
type ConfigCmd struct {
	File string   `flag:"" optional:"" help:"Config file path"`
	Set  []string `flag:"" optional:"" help:"Extra key=value overrides"`
}

func (ccmd *ConfigCmd) Run() error {
	var args []string
	if ccmd.File != "" {
		args = append(args, "--config="+ccmd.File)
	}
	for _, kv := range ccmd.Set {
		args = append(args, "--"+kv)
	}

	cfg, err := config.Resolve(args)
	if err != nil {
		return fmt.Errorf("failed to resolve configuration: %w", err)
	}
	fmt.Println(cfg.String())
	return nil
}

func main() {
	cli := &CLI{}
	ctx := kong.Parse(cli)
	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}
