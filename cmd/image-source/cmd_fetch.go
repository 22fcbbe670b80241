package main

import (
	"encoding/json"
	"fmt"
	"image"
	"os"
	"time"

	"github.com/disintegration/imaging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	imgutil "github.com/ironsheep/image-source/internal/imaging"
	"github.com/ironsheep/image-source/internal/request"
	"github.com/ironsheep/image-source/internal/source"
)

// fetchEnv provides the environment for the fetch command.
type fetchEnv struct {
	root *rootEnv

	path     string
	url      string
	asset    string
	cropFile string

	size     string
	width    int
	height   int
	delivery string
	output   string
	timeout  time.Duration
}

// getFetchCmd returns the definition of the fetch command.
func getFetchCmd(root *rootEnv) *cobra.Command {
	env := &fetchEnv{root: root}
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Request one image from a source and write it to a file.",
		Long: `
Exactly one of --path, --url or --asset selects the source. With --crop the
source is wrapped in a cropped source whose parameters are read from a JSON
file. The output format follows the extension of --output.

Each delivery is reported on stderr; the final image is written.`,
		Args: cobra.NoArgs,
		RunE: env.runFetchCmd,
	}
	cmd.Flags().StringVar(&env.path, "path", "", "Local image file")
	cmd.Flags().StringVar(&env.url, "url", "", "Remote image URL")
	cmd.Flags().StringVar(&env.asset, "asset", "", "Asset identifier in the configured asset library")
	cmd.Flags().StringVar(&env.cropFile, "crop", "", "JSON file with cropping parameters")
	cmd.Flags().StringVar(&env.size, "size", "full", "Size mode: full, fit or fill")
	cmd.Flags().IntVar(&env.width, "width", 0, "Target width for fit and fill")
	cmd.Flags().IntVar(&env.height, "height", 0, "Target height for fit and fill")
	cmd.Flags().StringVar(&env.delivery, "delivery", "best", "Delivery mode: best or progressive")
	cmd.Flags().StringVarP(&env.output, "output", "o", "", "Output file (.png, .jpg, .gif, .tif, .bmp)")
	cmd.Flags().DurationVar(&env.timeout, "timeout", time.Minute, "Give up and cancel the request after this long")
	must(cmd.MarkFlagRequired("output"))
	return cmd
}

// runFetchCmd executes the fetch command.
func (f *fetchEnv) runFetchCmd(cmd *cobra.Command, args []string) error {
	opts, err := f.options()
	if err != nil {
		return err
	}
	cfg, logger, err := f.root.load()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	factory, err := newFactory(cfg, logger, nil)
	if err != nil {
		return err
	}
	src, err := f.source(factory)
	if err != nil {
		return err
	}
	if c, ok := src.(*source.CroppedImageSource); ok {
		defer func() { _ = c.Close() }()
	}

	results := make(chan request.Result, 8)
	id := src.RequestImage(opts, func(r request.Result) {
		results <- r
	})
	logger.Debug("request issued", zap.Stringer("id", id), zap.Stringer("size", opts.Size))

	timer := time.NewTimer(f.timeout)
	defer timer.Stop()
	for {
		select {
		case r := <-results:
			if r.Degraded {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s: degraded %s\n", r.RequestID, describe(r.Image))
				continue
			}
			if r.Image == nil {
				return fmt.Errorf("%s: no image", r.RequestID)
			}
			if err := imaging.Save(r.Image, f.output, imaging.JPEGQuality(cfg.Encode.JPEGQuality)); err != nil {
				return fmt.Errorf("writing %s: %w", f.output, err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: final %s -> %s\n", r.RequestID, describe(r.Image), f.output)
			return nil
		case <-timer.C:
			src.CancelRequest(id)
			return fmt.Errorf("%s: timed out after %s", id, f.timeout)
		case <-cmd.Context().Done():
			src.CancelRequest(id)
			return cmd.Context().Err()
		}
	}
}

func (f *fetchEnv) options() (request.Options, error) {
	var opts request.Options
	target := request.Size{Width: f.width, Height: f.height}
	switch f.size {
	case "full":
		opts.Size = request.FullResolution()
	case "fit", "fill":
		if target.IsEmpty() {
			return opts, fmt.Errorf("--size %s needs positive --width and --height", f.size)
		}
		if f.size == "fit" {
			opts.Size = request.FitSize(target)
		} else {
			opts.Size = request.FillSize(target)
		}
	default:
		return opts, fmt.Errorf("unknown --size %q", f.size)
	}
	mode, ok := request.ParseDeliveryMode(f.delivery)
	if !ok {
		return opts, fmt.Errorf("unknown --delivery %q", f.delivery)
	}
	opts.DeliveryMode = mode
	return opts, nil
}

func (f *fetchEnv) source(factory *source.Factory) (source.ImageSource, error) {
	n := 0
	for _, v := range []string{f.path, f.url, f.asset} {
		if v != "" {
			n++
		}
	}
	if n != 1 {
		return nil, fmt.Errorf("exactly one of --path, --url or --asset is required")
	}

	var src source.ImageSource
	switch {
	case f.path != "":
		src = factory.Local(f.path)
	case f.url != "":
		r, err := factory.Remote(f.url)
		if err != nil {
			return nil, err
		}
		src = r
	default:
		a, err := factory.Asset(f.asset)
		if err != nil {
			return nil, err
		}
		src = a
	}
	if f.cropFile == "" {
		return src, nil
	}

	b, err := os.ReadFile(f.cropFile)
	if err != nil {
		return nil, err
	}
	var params imgutil.CroppingParameters
	if err := json.Unmarshal(b, &params); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", f.cropFile, err)
	}
	params.SourceOrientation = params.SourceOrientation.Normalized()
	return factory.Cropped(src, params)
}

func describe(img image.Image) string {
	if img == nil {
		return "<nil>"
	}
	b := img.Bounds()
	return fmt.Sprintf("%dx%d", b.Dx(), b.Dy())
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}
