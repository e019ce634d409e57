package main

import (
	"fmt"
	"os"

	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"

	"upnpscan/internal/webui"
)

func main() {
	app := NewApp()

	err := wails.Run(&options.App{
		Title:  "upnpscan",
		Width:  1100,
		Height: 768,
		AssetServer: &assetserver.Options{
			Handler: webui.New(app.manager).Handler(),
		},
		OnStartup: app.startup,
		Bind: []interface{}{
			app,
		},
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
