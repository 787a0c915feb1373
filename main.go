package main

import "ticketclassifier/internal/app"

func main() {
	app.Main()
}
