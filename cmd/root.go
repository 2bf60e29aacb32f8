// cmd/root.go
package cmd

import (
	"errors"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/jkeger/arctic-go/cti"
)

var (
	verbosity  int
	configPath string
	outputPath string
	iterations int
)

var rootCmd = &cobra.Command{
	Use:   "arctic-go",
	Short: "AlgoRithm for Charge Transfer Inefficiency (CTI) correction",
}

var addCmd = &cobra.Command{
	Use:   "add IMAGE",
	Short: "Add CTI trailing to an image using a clocking recipe",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cti.SetVerbosity(verbosity)
		if verbosity > 0 {
			logrus.SetLevel(logrus.DebugLevel)
		} else {
			logrus.SetLevel(logrus.WarnLevel)
		}

		r, err := loadRecipe(configPath)
		if err != nil {
			logrus.Errorf("%v", err)
			os.Exit(1)
		}
		parallel, err := r.Parallel.build()
		if err != nil {
			logrus.Errorf("building parallel config: %v", err)
			os.Exit(1)
		}
		serial, err := r.Serial.build()
		if err != nil {
			logrus.Errorf("building serial config: %v", err)
			os.Exit(1)
		}

		logrus.Infof("adding CTI to %s", args[0])
		img, err := readImage(args[0])
		if err != nil {
			logrus.Errorf("%v", err)
			os.Exit(1)
		}

		out, err := cti.AddCTI(img, parallel, serial)
		if err != nil {
			logrus.Errorf("add_cti: %v", err)
			os.Exit(1)
		}

		if err := writeImage(outputPath, out); err != nil {
			logrus.Errorf("%v", err)
			os.Exit(1)
		}
		logrus.Info("done")
	},
}

var removeCmd = &cobra.Command{
	Use:   "remove IMAGE",
	Short: "Remove CTI trailing from an image by iterative forward-model inversion",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cti.SetVerbosity(verbosity)
		if verbosity > 0 {
			logrus.SetLevel(logrus.DebugLevel)
		} else {
			logrus.SetLevel(logrus.WarnLevel)
		}

		r, err := loadRecipe(configPath)
		if err != nil {
			logrus.Errorf("%v", err)
			os.Exit(1)
		}
		parallel, err := r.Parallel.build()
		if err != nil {
			logrus.Errorf("building parallel config: %v", err)
			os.Exit(1)
		}
		serial, err := r.Serial.build()
		if err != nil {
			logrus.Errorf("building serial config: %v", err)
			os.Exit(1)
		}

		logrus.Infof("removing CTI from %s over %d iterations", args[0], iterations)
		img, err := readImage(args[0])
		if err != nil {
			logrus.Errorf("%v", err)
			os.Exit(1)
		}

		out, err := cti.RemoveCTI(img, iterations, parallel, serial)
		if err != nil {
			if !errors.Is(err, cti.ErrConvergence) {
				logrus.Errorf("remove_cti: %v", err)
				os.Exit(1)
			}
			logrus.Warnf("remove_cti: %v", err)
		}

		if err := writeImage(outputPath, out); err != nil {
			logrus.Errorf("%v", err)
			os.Exit(1)
		}
		logrus.Info("done")
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().IntVarP(&verbosity, "verbosity", "v", 0, "Verbosity level (0-2)")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "recipe.yaml", "Clocking recipe YAML file")
	rootCmd.PersistentFlags().StringVarP(&outputPath, "output", "o", "out.txt", "Output image path")

	removeCmd.Flags().IntVarP(&iterations, "iterations", "n", 3, "Number of RemoveCTI correction iterations")

	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(removeCmd)
}
