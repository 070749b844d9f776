package cli

import (
	"fmt"

	"github.com/SeldomQA/seldom-atx/keyframe"
	"github.com/urfave/cli/v2"
)

func (a *App) diff(ctx *cli.Context) error {
	if ctx.NArg() != 2 {
		return fmt.Errorf("expected <image1> <image2>, got %d arguments", ctx.NArg())
	}

	d, err := keyframe.CompareFiles(ctx.Args().Get(0), ctx.Args().Get(1))
	if err != nil {
		return err
	}
	a.logger.Debug().Int("distance", d).Msg("Images compared")

	fmt.Printf("Distance: %d of %d bits", d, keyframe.HashSize*keyframe.HashSize)
	if d < keyframe.TieThreshold {
		fmt.Print(" (match)")
	}
	fmt.Println()
	return nil
}
