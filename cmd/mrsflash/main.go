// mrsflash is a flash programmer for MRS Microplex 7* and CC16 CAN
// modules. It captures a module in its bootloader straight out of
// reset, so it works even when the installed application is broken,
// then erases, uploads S-records, or reads and updates the EEPROM
// parameter table.
package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/john-titor/mrsflash/internal/canbus"
	"github.com/john-titor/mrsflash/internal/config"
	"github.com/john-titor/mrsflash/internal/logging"
	"github.com/john-titor/mrsflash/internal/module"
	"github.com/john-titor/mrsflash/internal/power"
	"github.com/john-titor/mrsflash/internal/session"
	"github.com/john-titor/mrsflash/internal/srecord"
)

func main() {
	var (
		configFile       = pflag.StringP("config-file", "c", "mrsflash.yaml", "Configuration file name.")
		interfaceName    = pflag.String("interface-name", "", "CAN adapter driver (currently only \"slcan\").")
		interfaceChannel = pflag.String("interface-channel", "", "Adapter channel; the serial device path for slcan.")
		bitrate          = pflag.Int("bitrate", 0, "CAN bitrate in kbit/s.")
		verbose          = pflag.BoolP("verbose", "v", false, "Trace every CAN frame sent and received.")

		upload             = pflag.String("upload", "", "S-record FILE to flash to the module.")
		erase              = pflag.Bool("erase", false, "Erase the module's flash.")
		console            = pflag.Bool("console", false, "Reset the module and print its console output.")
		printParameters    = pflag.Bool("print-module-parameters", false, "Print the module's EEPROM parameters.")
		setBitrate         = pflag.Int("set-bootloader-can-bitrate", 0, "Set the bootloader CAN bitrate (kbit/s).")
		setModuleName      = pflag.String("set-module-name", "", "Set the EEPROM module name.")
		setSWVersion       = pflag.String("set-software-version", "", "Set the EEPROM software version.")
		printHCS08Srecords = pflag.String("print-hcs08-srecords", "", "Print the records of an HCS08 S-record FILE and exit.")
		printS32KSrecords  = pflag.String("print-s32k-srecords", "", "Print the records of an S32K S-record FILE and exit.")

		crlf                  = pflag.Bool("crlf", false, "Print S-records with CR-LF line endings.")
		consoleAfterUpload    = pflag.Bool("console-after-upload", false, "Monitor the module console after a successful upload.")
		powerCycleAfterUpload = pflag.Bool("power-cycle-after-upload", false, "Cycle module power after a successful upload.")
		kl15AfterUpload       = pflag.Bool("kl15-after-upload", false, "Apply T15 when power-cycling after upload, so the application runs.")
		noPowerOff            = pflag.Bool("no-power-off", false, "Leave module power on at exit.")
	)
	pflag.Parse()

	actions := 0
	for _, set := range []bool{
		*upload != "", *erase, *console, *printParameters,
		*setBitrate != 0, *setModuleName != "", *setSWVersion != "",
		*printHCS08Srecords != "", *printS32KSrecords != "",
	} {
		if set {
			actions++
		}
	}
	if actions != 1 {
		fmt.Fprintln(os.Stderr, "ERROR: exactly one action must be given")
		pflag.Usage()
		os.Exit(1)
	}

	// The print actions only read a file; no bus or module needed.
	if *printHCS08Srecords != "" || *printS32KSrecords != "" {
		if err := printSrecords(*printHCS08Srecords, *printS32KSrecords, *crlf); err != nil {
			fmt.Fprintf(os.Stderr, "ERROR: %s\n", err)
			os.Exit(1)
		}
		return
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", err)
		os.Exit(1)
	}
	if *interfaceName != "" {
		cfg.InterfaceName = *interfaceName
	}
	if *interfaceChannel != "" {
		cfg.InterfaceChannel = *interfaceChannel
	}
	if *bitrate != 0 {
		cfg.BitrateKbps = *bitrate
	}

	opts := runOptions{
		upload:                *upload,
		erase:                 *erase,
		console:               *console,
		printParameters:       *printParameters,
		setBitrate:            *setBitrate,
		setModuleName:         *setModuleName,
		setSWVersion:          *setSWVersion,
		consoleAfterUpload:    *consoleAfterUpload,
		powerCycleAfterUpload: *powerCycleAfterUpload,
		kl15AfterUpload:       *kl15AfterUpload,
		noPowerOff:            *noPowerOff,
	}
	if err := run(cfg, *verbose, opts); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", err)
		os.Exit(1)
	}
}

type runOptions struct {
	upload          string
	erase           bool
	console         bool
	printParameters bool
	setBitrate      int
	setModuleName   string
	setSWVersion    string

	consoleAfterUpload    bool
	powerCycleAfterUpload bool
	kl15AfterUpload       bool
	noPowerOff            bool
}

func run(cfg config.Config, verbose bool, opts runOptions) error {
	logger := logging.New(os.Stderr, verbose)

	if cfg.InterfaceName != "slcan" {
		return fmt.Errorf("unsupported CAN interface %q", cfg.InterfaceName)
	}
	bus, err := canbus.OpenSLCAN(cfg.InterfaceChannel, cfg.BitrateKbps)
	if err != nil {
		return err
	}
	defer bus.Close()

	agent, err := newPowerAgent(cfg.Power)
	if err != nil {
		return err
	}

	sess := session.New(bus, agent, logger)
	if !opts.noPowerOff {
		defer agent.Off()
	}

	moduleID, err := sess.Detect()
	if err != nil {
		return err
	}
	mod := module.New(sess, moduleID, logger)

	switch {
	case opts.upload != "":
		if err := doUpload(mod, opts.upload); err != nil {
			return err
		}
		if opts.powerCycleAfterUpload {
			if err := powerCycle(agent, opts.kl15AfterUpload); err != nil {
				return err
			}
		}
		if opts.consoleAfterUpload {
			return runConsole(sess)
		}
		return nil

	case opts.erase:
		err := mod.EraseOnly(eraseProgress)
		finishProgress()
		return err

	case opts.console:
		// Reset the module first; otherwise it sits in the bootloader
		// for a long while after detection before timing out into the
		// application.
		if err := powerCycle(agent, true); err != nil {
			return err
		}
		return runConsole(sess)

	case opts.printParameters:
		for _, name := range mod.ParameterNames() {
			value, err := mod.Parameter(name)
			if err != nil {
				return err
			}
			fmt.Printf("%-30s %s\n", name, value)
		}
		return nil

	case opts.setBitrate != 0:
		return mod.SetParameter("BaudrateBootloader1", fmt.Sprintf("%d", opts.setBitrate))

	case opts.setModuleName != "":
		return mod.SetParameter("ModuleName", opts.setModuleName)

	case opts.setSWVersion != "":
		return mod.SetParameter("SoftwareVersion", opts.setSWVersion)
	}
	return nil
}

func newPowerAgent(cfg config.Power) (power.Agent, error) {
	switch cfg.Kind {
	case "", "manual":
		return power.NewManualPower(os.Stdout, os.Stdin), nil
	case "gpio":
		return power.NewGPIOAgent(cfg.GPIOChip, cfg.T30Line, cfg.T15Line)
	default:
		return nil, fmt.Errorf("unknown power agent kind %q", cfg.Kind)
	}
}

// doUpload reads the module's MCU type and picks the matching S-record
// convention, then flashes the image.
func doUpload(mod *module.Controller, path string) error {
	mcuType, err := mod.Parameter("MCUType")
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var source srecord.Source
	switch mcuType {
	case "0x1":
		source, err = srecord.NewHCS08Source(f)
	case "0x6", "0x8":
		source, err = srecord.NewS32KSource(f)
	default:
		return fmt.Errorf("unsupported module MCU type %s", mcuType)
	}
	if err != nil {
		return err
	}

	err = mod.Upload(source, eraseProgress, uploadProgress)
	finishProgress()
	return err
}

// powerCycle drops power, lets the rails settle, and brings the module
// back up, with T15 so the application runs or without so it lingers
// in the bootloader.
func powerCycle(agent power.Agent, withT15 bool) error {
	if err := agent.Off(); err != nil {
		return err
	}
	time.Sleep(250 * time.Millisecond)
	if withT15 {
		return agent.T30T15()
	}
	return agent.T30()
}

// runConsole prints the module's console stream, one NUL-terminated
// line at a time, until interrupted.
func runConsole(sess *session.Controller) error {
	line := ""
	for {
		data, err := sess.GetConsoleData()
		if err != nil {
			return err
		}
		line += string(data)
		if strings.HasSuffix(line, "\x00") {
			fmt.Println(strings.TrimRight(line, "\x00"))
			line = ""
		}
	}
}

func printSrecords(hcs08Path, s32kPath string, crlf bool) error {
	path, open := hcs08Path, srecord.NewHCS08Source
	if s32kPath != "" {
		path, open = s32kPath, srecord.NewS32KSource
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	source, err := open(f)
	if err != nil {
		return err
	}
	lines, err := source.TextRecords()
	if err != nil {
		return err
	}
	for _, line := range lines {
		if crlf {
			line += "\r"
		}
		fmt.Println(line)
	}
	return nil
}

const progressWidth = 60

// drawProgress renders a position within limit as a fixed-width bar.
// Both values are clamped so a module reporting a degenerate limit
// (0 or 1) still draws sensibly.
func drawProgress(position, limit int) {
	if limit < 1 {
		limit = 1
	}
	if position < 0 {
		position = 0
	}
	if position > limit {
		position = limit
	}
	filled := position * progressWidth / limit
	fmt.Printf("\r[%-*s]", progressWidth, strings.Repeat("#", filled))
}

// eraseProgress adapts the erase stream's counter, which runs from 0
// toward max-1.
func eraseProgress(cur, max int) {
	drawProgress(cur, max-1)
}

func uploadProgress(sent, total int) {
	drawProgress(sent, total)
}

func finishProgress() {
	fmt.Println()
}
