/*
Copyright (C) 2026  GeddyDB Contributors

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/
/*
	geddydb: a small hybrid OLTP/OLAP storage and indexing core —
	paged blocks, a WAL-backed row store, persistent B+Tree indexes,
	and a compacting columnar segment store.
*/
package main

import (
	"flag"
	"fmt"
	"log"
	"path/filepath"

	"github.com/geddydb/geddydb/rowpack"
	"github.com/geddydb/geddydb/storagemgr"
	"github.com/geddydb/geddydb/table"
)

func main() {
	fmt.Print(`geddydb Copyright (C) 2026  GeddyDB Contributors
    This program comes with ABSOLUTELY NO WARRANTY;
    This is free software, and you are welcome to redistribute it
    under certain conditions;
`)

	baseDir := flag.String("data", "data", "base directory for row blocks, WAL, segments and indexes")
	flag.Parse()

	mgr, err := storagemgr.Open(*baseDir)
	if err != nil {
		log.Fatalf("geddydb: open storage at %s: %v", *baseDir, err)
	}
	mgr.RegisterOnExit()

	demo, err := table.Open(mgr, filepath.Join(*baseDir, "indexes"), "demo", []table.Column{
		{Name: "id", DType: table.DataTypeInt, Constraints: []string{table.ConstraintPrimaryKey}, AutoIncrement: true},
		{Name: "label", DType: table.DataTypeText, Constraints: []string{table.ConstraintNotNull}},
	})
	if err != nil {
		log.Fatalf("geddydb: open table demo: %v", err)
	}
	if err := demo.Insert(rowpack.Row{"label": rowpack.NewText("hello, geddydb")}); err != nil {
		log.Fatalf("geddydb: insert into demo: %v", err)
	}

	rows, err := demo.SelectAll()
	if err != nil {
		log.Fatalf("geddydb: select from demo: %v", err)
	}
	fmt.Printf("demo now holds %d row(s) under %s\n", len(rows), *baseDir)
}
