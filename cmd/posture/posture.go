package main

import (
	"flag"
	"log"
	"math"

	"github.com/softarm-vision/posture.report/internal/marker"
	"github.com/softarm-vision/posture.report/internal/posture"
	"github.com/softarm-vision/posture.report/internal/report"
	"github.com/softarm-vision/posture.report/internal/trackdb"
)

var (
	dbFile     = flag.String("db", "", "Path to the run's track store (.db)")
	markerFile = flag.String("markers", "", "Marker geometry file (.json)")
	recompute  = flag.Bool("recompute", false, "Discard stored posture arrays and refit from world tracks")
	htmlOut    = flag.String("html", "", "Write an interactive trajectory report to this HTML file")
	plotDir    = flag.String("plots", "", "Write per-axis trajectory PNGs into this directory")
)

func main() {
	flag.Parse()

	if *dbFile == "" {
		log.Fatal("track store path is required (-db)")
	}
	if *markerFile == "" {
		log.Fatal("marker geometry path is required (-markers)")
	}

	markers, err := marker.Load(*markerFile)
	if err != nil {
		log.Fatalf("Failed to load marker geometry: %v", err)
	}
	if err := markers.Validate(); err != nil {
		log.Fatalf("Invalid marker geometry: %v", err)
	}

	store, err := trackdb.Load(*dbFile)
	if err != nil {
		log.Fatalf("Failed to open track store: %v", err)
	}
	defer store.Close()

	data := posture.NewPostureData(store, markers)

	var series *posture.Series
	if *recompute {
		series, err = data.Recompute()
	} else {
		series, err = data.LoadPositionsAndDirectors()
	}
	if err != nil {
		log.Fatalf("Failed to compute posture: %v", err)
	}

	fitted := 0
	for t := 0; t < series.T; t++ {
		for ring := 0; ring < series.N; ring++ {
			if !math.IsNaN(series.Position(t, ring)[0]) {
				fitted++
			}
		}
	}
	log.Printf("Posture ready for run %s: %d timesteps, %d cross-sections, %d/%d fits",
		store.RunID, series.T, series.N, fitted, series.T*series.N)

	if *htmlOut != "" {
		if err := report.WriteHTML(series, *htmlOut); err != nil {
			log.Fatalf("Failed to write HTML report: %v", err)
		}
		log.Printf("Wrote HTML report to %s", *htmlOut)
	}
	if *plotDir != "" {
		if err := report.WriteTrajectoryPlots(series, *plotDir); err != nil {
			log.Fatalf("Failed to write trajectory plots: %v", err)
		}
		log.Printf("Wrote trajectory plots to %s", *plotDir)
	}
}
