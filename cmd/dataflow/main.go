package main

import (
	"github.com/longkeyy/go-dataflow/core/engine"

	_ "github.com/longkeyy/go-dataflow/plugins/reader/streamreader"
	_ "github.com/longkeyy/go-dataflow/plugins/writer/streamwriter"
)

var version = "dev"

func main() {
	engine.Main(version)
}
