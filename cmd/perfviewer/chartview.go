package main

import (
	"bytes"
	"image"
	"image/png"

	chart "github.com/wcharczuk/go-chart/v2"

	"github.com/iafilius/ThreadPerfMonitor/src/perfcard"
	"github.com/iafilius/ThreadPerfMonitor/src/render"
)

const (
	loadingText = "Loading thread performance data..."
	noDataText  = "No performance snapshots recorded yet."
)

// placeholderLines is what replaces the chart outside the ready state.
func placeholderLines(v perfcard.View) []string {
	switch v.State {
	case perfcard.StateLoading:
		return []string{loadingText}
	case perfcard.StateError:
		if v.Error == nil {
			return nil
		}
		if v.Error.Note == "" {
			return []string{v.Error.Message}
		}
		return []string{v.Error.Message, v.Error.Note}
	case perfcard.StateReady:
		if !v.Drawable {
			return []string{noDataText}
		}
	}
	return nil
}

// chartLayers draws v through the card. It returns the raster heat-map and the
// decoded overlay, or a placeholder raster with a nil overlay when there is no
// chart to show. Both are nil for a hidden card.
func chartLayers(card *perfcard.Card, v perfcard.View) (raster, overlay image.Image, err error) {
	if v.State == perfcard.StateHidden {
		return nil, nil, nil
	}
	if lines := placeholderLines(v); lines != nil {
		return render.Placeholder(v.Width, v.Height, v.Dark, lines...), nil, nil
	}
	rgba := image.NewRGBA(image.Rect(0, 0, v.Width, v.Height))
	var vec bytes.Buffer
	layout, err := card.Draw(render.Targets{Vector: &vec, VectorFormat: chart.PNG, Raster: rgba})
	if err != nil {
		return nil, nil, err
	}
	if layout == nil {
		// the card moved on since v was taken
		return render.Placeholder(v.Width, v.Height, v.Dark, loadingText), nil, nil
	}
	ov, err := png.Decode(&vec)
	if err != nil {
		return nil, nil, err
	}
	return rgba, ov, nil
}

// flatten composes both layers for export.
func flatten(raster, overlay image.Image) image.Image {
	if raster == nil {
		return nil
	}
	if overlay == nil {
		return raster
	}
	return render.Compose(raster, overlay)
}
