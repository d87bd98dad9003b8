package plugin

//go:generate tinygo build -o testdata/minimal.wasm -target=wasip1 -no-debug ./testdata/minimal
//go:generate tinygo build -o testdata/echo.wasm -target=wasip1 -no-debug ./testdata/echo
//go:generate tinygo build -o testdata/slow.wasm -target=wasip1 -no-debug ./testdata/slow
//go:generate tinygo build -o testdata/regex.wasm -target=wasip1 -no-debug ./testdata/regex
