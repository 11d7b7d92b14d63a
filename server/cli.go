package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"orrery.space/shared/celestial"
)

var rootCmd = &cobra.Command{
	Use:           "orrery",
	Short:         "Heliocentric orrery with conjunctions, sexagenary years and trigram bearings",
	Long:          "Orrery computes circular-orbit planet positions, pairwise phase angles, conjunction events, the Chinese sexagenary year and eight-trigram bearings, and serves them over HTTP and websockets.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP, websocket and metrics servers",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := Load()
		if err != nil {
			return err
		}
		return runServer(cfg)
	},
}

var positionsCmd = &cobra.Command{
	Use:   "positions",
	Short: "Print planet positions",
	RunE: func(cmd *cobra.Command, args []string) error {
		calc, ms, err := commandInputs(cmd)
		if err != nil {
			return err
		}
		states := calc.Positions(ms)
		if asJSON(cmd) {
			return printJSON(cmd.OutOrStdout(), states)
		}
		printPositions(cmd.OutOrStdout(), states)
		return nil
	},
}

var anglesCmd = &cobra.Command{
	Use:   "angles",
	Short: "Print phase angles between every planet pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		calc, ms, err := commandInputs(cmd)
		if err != nil {
			return err
		}
		angles := calc.PhaseAngles(calc.Positions(ms))
		if asJSON(cmd) {
			return printJSON(cmd.OutOrStdout(), angles)
		}
		printAngles(cmd.OutOrStdout(), angles)
		return nil
	},
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Print conjunctions below the configured threshold",
	RunE: func(cmd *cobra.Command, args []string) error {
		calc, ms, err := commandInputs(cmd)
		if err != nil {
			return err
		}
		events := calc.CelestialEvents(calc.Positions(ms))
		if asJSON(cmd) {
			return printJSON(cmd.OutOrStdout(), events)
		}
		printEvents(cmd.OutOrStdout(), events, calc.Options().ConjunctionThreshold)
		return nil
	},
}

var zodiacCmd = &cobra.Command{
	Use:   "zodiac",
	Short: "Print the sexagenary year label",
	RunE: func(cmd *cobra.Command, args []string) error {
		calc, ms, err := commandInputs(cmd)
		if err != nil {
			return err
		}
		z := calc.ChineseZodiac(ms)
		if cmd.Flags().Changed("year") {
			year, _ := cmd.Flags().GetInt("year")
			z = calc.ZodiacForYear(year)
		}
		if asJSON(cmd) {
			return printJSON(cmd.OutOrStdout(), z)
		}
		printZodiac(cmd.OutOrStdout(), z)
		return nil
	},
}

var trigramsCmd = &cobra.Command{
	Use:   "trigrams",
	Short: "Print the trigram sector of every planet",
	RunE: func(cmd *cobra.Command, args []string) error {
		calc, ms, err := commandInputs(cmd)
		if err != nil {
			return err
		}
		assignments := calc.TrigramPositions(calc.Positions(ms))
		if asJSON(cmd) {
			return printJSON(cmd.OutOrStdout(), assignments)
		}
		printTrigrams(cmd.OutOrStdout(), assignments)
		return nil
	},
}

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Print the full JSON snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		calc, ms, err := commandInputs(cmd)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), calc.Snapshot(ms))
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Animate the orbits in the terminal",
	RunE: func(cmd *cobra.Command, args []string) error {
		calc, ms, err := commandInputs(cmd)
		if err != nil {
			return err
		}
		speed, _ := cmd.Flags().GetFloat64("speed")
		if speed <= 0 {
			return fmt.Errorf("--speed must be positive, got %g", speed)
		}
		return runWatch(calc, ms, speed)
	},
}

func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	return nil
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "config file (default .orrery.yaml)")
	pf.String("planets", "", "planet table file (.yaml, .yml or .toml)")
	pf.String("timezone", "", "IANA zone for dates and the sexagenary year (default UTC)")
	pf.Float64("threshold", celestial.DefaultConjunctionThreshold, "conjunction threshold in degrees")

	sf := serveCmd.Flags()
	sf.String("http", "", "HTTP listen address (default :8080)")
	sf.String("https", "", "HTTPS listen address; enables autocert")
	sf.String("metrics", "", "metrics listen address (default :9090)")
	sf.String("domain", "", "apex domain for planet subdomains")

	for _, c := range []*cobra.Command{positionsCmd, anglesCmd, eventsCmd, zodiacCmd, trigramsCmd, snapshotCmd, watchCmd} {
		c.Flags().String("t", "", "time in milliseconds since the Unix epoch")
		c.Flags().String("date", "", "date as YYYY-MM-DD")
		if c != snapshotCmd && c != watchCmd {
			c.Flags().Bool("json", false, "print JSON instead of a table")
		}
		rootCmd.AddCommand(c)
	}
	zodiacCmd.Flags().Int("year", 0, "Gregorian year to label instead of a time")
	watchCmd.Flags().Float64("speed", 86400, "simulated seconds per wall-clock second")

	rootCmd.AddCommand(serveCmd)
}

// bindFlags maps CLI flags onto config keys. Bindings live in viper's
// global state, so they are redone whenever config is initialised.
func bindFlags() {
	pf := rootCmd.PersistentFlags()
	_ = viper.BindPFlag("planets_file", pf.Lookup("planets"))
	_ = viper.BindPFlag("timezone", pf.Lookup("timezone"))
	_ = viper.BindPFlag("conjunction_threshold", pf.Lookup("threshold"))

	sf := serveCmd.Flags()
	_ = viper.BindPFlag("server.http_addr", sf.Lookup("http"))
	_ = viper.BindPFlag("server.https_addr", sf.Lookup("https"))
	_ = viper.BindPFlag("server.metrics_addr", sf.Lookup("metrics"))
	_ = viper.BindPFlag("server.domain", sf.Lookup("domain"))
}

func initConfig() {
	bindFlags()

	if cfgFile, _ := rootCmd.Flags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName(".orrery")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
	}

	viper.SetEnvPrefix("ORRERY")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// It's fine if no config file is found; we use defaults.
	_ = viper.ReadInConfig()
}

// commandInputs loads config and resolves the --t/--date flags.
func commandInputs(cmd *cobra.Command) (*celestial.Calculator, float64, error) {
	cfg, err := Load()
	if err != nil {
		return nil, 0, err
	}
	calc, err := cfg.NewCalculator()
	if err != nil {
		return nil, 0, err
	}
	t, _ := cmd.Flags().GetString("t")
	date, _ := cmd.Flags().GetString("date")
	ms, err := resolveTime(t, date, calc.Options().Location, time.Now())
	if err != nil {
		return nil, 0, err
	}
	return calc, ms, nil
}

func asJSON(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}
