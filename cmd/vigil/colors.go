package main

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/esimov/vigil"
	"github.com/esimov/vigil/utils"
	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
)

var colorsOpts struct {
	workers int
	top     int
	json    bool
}

var colorsCmd = &cobra.Command{
	Use:   "colors <image|dir|url|->",
	Short: "Classify the image pixels into named colors",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, err := vigil.ParseMode(cfg.Mode)
		if err != nil {
			return err
		}
		cl := vigil.NewClassifier(cfg.Stride, mode)
		if cfg.Palette != "" {
			if cl.Palette, err = vigil.LoadPaletteFile(cfg.Palette); err != nil {
				return err
			}
		}

		op := &vigil.Ops{
			Src:      args[0],
			PipeName: pipeName,
			Workers:  colorsOpts.workers,
		}

		var spinner *utils.Spinner
		if fi, err := os.Stat(op.Src); err == nil && fi.IsDir() {
			op.Progress = cmd.ErrOrStderr()
		} else {
			spinner = utils.NewSpinner(cmd.ErrOrStderr(),
				utils.DecorateText("vigil is classifying the image...", utils.StatusMessage),
				200*time.Millisecond,
			)
			spinner.Start()
		}

		now := time.Now()
		results, err := op.Classify(cmd.Context(), cl)
		if spinner != nil {
			spinner.Stop("")
		}
		if err != nil {
			return err
		}

		if colorsOpts.json {
			if err := jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(cmd.OutOrStdout()).Encode(results); err != nil {
				return err
			}
			return failures(results)
		}
		printColors(cmd.OutOrStdout(), results, colorsOpts.top)
		fmt.Fprintf(cmd.ErrOrStderr(), "\nExecution time: %s\n",
			utils.DecorateText(utils.FormatTime(time.Since(now)), utils.SuccessMessage))
		return failures(results)
	},
}

// failures reports the images which could not be classified.
func failures(results []vigil.ColorResult) error {
	var n int
	for _, res := range results {
		if res.Err != nil {
			n++
		}
	}
	if n == 0 {
		return nil
	}
	return fmt.Errorf("%d of %d images could not be classified", n, len(results))
}

func init() {
	flags := colorsCmd.Flags()
	flags.IntVar(&cfg.Stride, "stride", cfg.Stride, "Pixel sampling step")
	flags.StringVar(&cfg.Mode, "mode", cfg.Mode, "Classification mode (exclusive, multi)")
	flags.StringVar(&cfg.Palette, "palette", cfg.Palette, "YAML palette file replacing the built-in colors")
	flags.IntVar(&colorsOpts.workers, "conc", runtime.NumCPU(), "Number of files to process concurrently")
	flags.IntVar(&colorsOpts.top, "top", 5, "Number of colors listed per image, 0 lists all")
	flags.BoolVar(&colorsOpts.json, "json", false, "Print the results as JSON")

	rootCmd.AddCommand(colorsCmd)
}

// printColors lists the dominant colors of every image.
func printColors(w io.Writer, results []vigil.ColorResult, top int) {
	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	defer tw.Flush()

	fmt.Fprintln(tw, "IMAGE\tCOLORS")
	for _, res := range results {
		if res.Err != nil {
			fmt.Fprintf(tw, "%s\t%s\n", res.Path, utils.DecorateText(res.Err.Error(), utils.ErrorMessage))
			continue
		}
		colors := res.Colors
		if top > 0 && len(colors) > top {
			colors = colors[:top]
		}
		parts := make([]string, len(colors))
		for i, c := range colors {
			parts[i] = fmt.Sprintf("%s %s", c.Name, utils.Percent(c.Share))
		}
		if len(parts) == 0 {
			parts = append(parts, "-")
		}
		fmt.Fprintf(tw, "%s\t%s\n", res.Path, strings.Join(parts, ", "))
	}
}
