package main

import (
	"context"
	"flag"
	"log"

	"github.com/ottobrain/torrentcore"
)

func main() {
	const (
		torrentDescription = "Required: path of the torrent file."
		outDescription     = "Optional: directory to write the downloaded file(s) to.\nIf not set, files are written alongside the torrent file."
	)
	var torrentPath string
	var outDir string
	var maxPeers int

	flag.StringVar(&torrentPath, "f", "", torrentDescription)
	flag.StringVar(&torrentPath, "file", "", torrentDescription)

	flag.StringVar(&outDir, "o", "", outDescription)
	flag.StringVar(&outDir, "output", "", outDescription)

	flag.IntVar(&maxPeers, "max-peers", 30, "Optional: maximum number of concurrent peer connections.")

	flag.Parse()

	if torrentPath == "" {
		log.Fatal("please provide a path to the torrent file")
	}

	err := torrentcore.Download(context.Background(), torrentPath, torrentcore.Options{
		OutDir:   outDir,
		MaxPeers: maxPeers,
	})
	if err != nil {
		log.Fatal(err)
	}
}
