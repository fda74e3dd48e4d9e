package main

import (
	"agora-chat/internal/app"

	"go.uber.org/fx"
)

func main() {
	fx.New(app.Module()).Run()
}
