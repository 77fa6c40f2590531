// greplay-bitmapgen produces a classification-bitmap file consumed by
// internal/classify.Load and bound to a single source via
// config.ReplayConfig.BitmapPath. It counts the packets in a capture
// file and assigns each one a route according to the selected
// pattern, since the engine itself has no opinion on how a bitmap was
// produced (spec.md section 6, "Classification bitmap file").
package main

import (
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"

	"github.com/spf13/cobra"

	"github.com/greplay/greplay/internal/capture"
	"github.com/greplay/greplay/internal/classify"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		capturePath string
		outputPath  string
		pattern     string
		comment     string
		seed        int64
	)

	cmd := &cobra.Command{
		Use:   "greplay-bitmapgen",
		Short: "Generate a classification-bitmap file for a capture file",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return generate(capturePath, outputPath, pattern, comment, seed)
		},
	}

	cmd.Flags().StringVar(&capturePath, "capture", "", "capture file to count packets in; required")
	cmd.Flags().StringVar(&outputPath, "output", "", "path to write the bitmap file; required")
	cmd.Flags().StringVar(&pattern, "pattern", "alternate",
		"routing pattern: alternate, all-a, all-b, random")
	cmd.Flags().StringVar(&comment, "comment", "", "free-text comment stored in the bitmap header")
	cmd.Flags().Int64Var(&seed, "seed", 1, "PRNG seed for --pattern=random")

	_ = cmd.MarkFlagRequired("capture")
	_ = cmd.MarkFlagRequired("output")

	return cmd
}

func generate(capturePath, outputPath, pattern, comment string, seed int64) error {
	count, err := countPackets(capturePath)
	if err != nil {
		return fmt.Errorf("count packets in %s: %w", capturePath, err)
	}

	bits, err := buildBits(count, pattern, seed)
	if err != nil {
		return err
	}

	bm := classify.New(bits, count, comment)

	f, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("create bitmap file %s: %w", outputPath, err)
	}
	defer func() { _ = f.Close() }()

	if err := bm.Save(f); err != nil {
		return fmt.Errorf("write bitmap file %s: %w", outputPath, err)
	}

	fmt.Printf("wrote %s: %d packets, pattern=%s\n", outputPath, count, pattern)
	return nil
}

func countPackets(path string) (int, error) {
	r, err := capture.Open(path)
	if err != nil {
		return 0, err
	}
	defer func() { _ = r.Close() }()

	n := 0
	for {
		if _, err := r.Next(); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return n, err
		}
		n++
	}
	return n, nil
}

func buildBits(count int, pattern string, seed int64) ([]byte, error) {
	numBytes := (count + 7) / 8
	bits := make([]byte, numBytes)

	switch pattern {
	case "all-a":
		// Zero value already routes every packet to interface A.
	case "all-b":
		for i := range bits {
			bits[i] = 0xFF
		}
	case "alternate":
		for i := 0; i < count; i++ {
			if i%2 == 1 {
				bits[i/8] |= 1 << uint(i%8) //nolint:gosec // G115: i%8 < 8
			}
		}
	case "random":
		rng := rand.New(rand.NewSource(seed)) //nolint:gosec // G404: deterministic test traffic generator, not a security context
		for i := 0; i < count; i++ {
			if rng.Intn(2) == 1 {
				bits[i/8] |= 1 << uint(i%8) //nolint:gosec // G115: i%8 < 8
			}
		}
	default:
		return nil, fmt.Errorf("unknown pattern %q: want alternate, all-a, all-b, or random", pattern)
	}

	return bits, nil
}
