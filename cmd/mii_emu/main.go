// mii_emu boots the emulated Apple //e from the command line: slot
// configuration, audio and tracing switches, then hands the CPU thread
// to the regulator until it terminates.
package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/mii-emu/miigo/internal/machine"
	"github.com/mii-emu/miigo/internal/regulator"
	"github.com/mii-emu/miigo/internal/settings"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	flags := pflag.NewFlagSet("mii_emu", pflag.ContinueOnError)
	slotFlags := flags.StringArray("slot", nil,
		"attach a driver: N=DRIVER[,k=v...] (disk2, smartport, ssc, mockingboard, rom1mb)")
	audioOff := flags.Bool("audio-off", false, "disable the audio driver")
	fullscreen := flags.Bool("fullscreen", false, "start fullscreen")
	hideUI := flags.Bool("hide-ui", false, "start with the UI hidden")
	trace := flags.Bool("trace", false, "enable the instruction trace ring")
	vcdPath := flags.String("vcd", "", "trace the interrupt lines to a VCD file")
	joystick := flags.String("joystick", "/dev/input/js0", "joystick device")
	romPath := flags.String("rom", "", "12KB $D000-$FFFF ROM image")

	if err := flags.Parse(args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	prefs, prefsPath := settings.LoadDefault()
	prefs.Set("window", "fullscreen", strconv.FormatBool(*fullscreen))
	prefs.Set("window", "hide-ui", strconv.FormatBool(*hideUI))

	opt := machine.Options{
		AudioOff:     *audioOff,
		Trace:        *trace,
		VCDPath:      *vcdPath,
		JoystickPath: *joystick,
		Slots:        map[int]machine.SlotSpec{},
	}
	if *romPath != "" {
		img, err := os.ReadFile(*romPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "rom: %v\n", err)
			return 1
		}
		opt.ROM = img
	}

	for _, spec := range *slotFlags {
		n, ss, err := parseSlotFlag(spec)
		if err != nil {
			// Configuration error: report, skip the option, continue.
			fmt.Fprintf(os.Stderr, "--slot %s: %v\n", spec, err)
			continue
		}
		opt.Slots[n] = ss
		prefs.Set(fmt.Sprintf("slot%d", n), "driver", ss.Driver)
	}
	// Bare disk images go to the disk controller in slot 6.
	if imgs := flags.Args(); len(imgs) > 0 {
		ss := machine.SlotSpec{Driver: "disk2", Opts: map[string]string{}}
		for i, img := range imgs {
			ss.Opts[fmt.Sprintf("disk%d", i+1)] = img
		}
		opt.Slots[6] = ss
	}

	m, err := machine.New(opt)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mii_emu: %v\n", err)
		return 1
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigc
		m.Regulator().Post(regulator.Msg{Cmd: regulator.CmdTerminate})
	}()

	var mish *console
	if port := os.Getenv("MISH_TELNET_PORT"); port != "" {
		mish, err = newConsole(m, port)
		if err != nil {
			log.Printf("mish: %v", err)
		} else {
			go mish.serve()
		}
	}

	m.Regulator().Post(regulator.Msg{Cmd: regulator.CmdRun})
	runErr := m.Run()
	if mish != nil {
		mish.close()
	}
	if runErr != nil {
		fmt.Fprintf(os.Stderr, "mii_emu: %v\n", runErr)
		return 1
	}

	if err := prefs.Save(prefsPath); err != nil {
		log.Printf("settings: %v", err)
	}
	return 0
}

// parseSlotFlag decodes N=DRIVER[,k=v...].
func parseSlotFlag(spec string) (int, machine.SlotSpec, error) {
	var ss machine.SlotSpec
	eq := strings.IndexByte(spec, '=')
	if eq < 0 {
		return 0, ss, fmt.Errorf("missing '='")
	}
	n, err := strconv.Atoi(spec[:eq])
	if err != nil || n < 1 || n > 7 {
		return 0, ss, fmt.Errorf("bad slot number %q", spec[:eq])
	}
	parts := strings.Split(spec[eq+1:], ",")
	ss.Driver = parts[0]
	if ss.Driver == "" {
		return 0, ss, fmt.Errorf("missing driver name")
	}
	ss.Opts = map[string]string{}
	for _, kv := range parts[1:] {
		if kv == "" {
			continue
		}
		if i := strings.IndexByte(kv, '='); i >= 0 {
			ss.Opts[kv[:i]] = kv[i+1:]
		} else {
			ss.Opts[kv] = "1"
		}
	}
	return n, ss, nil
}
