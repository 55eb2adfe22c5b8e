package main

import "floorbot/internal/app"

func main() {
	app.Main()
}
