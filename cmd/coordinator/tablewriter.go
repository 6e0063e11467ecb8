package main

import (
	"os"

	"github.com/lagrangedao/go-bounty-coordinator/constants"
	"github.com/lagrangedao/go-bounty-coordinator/internal/models"
	"github.com/olekukonko/tablewriter"
)

type VisualTable struct {
	Header   []string
	Data     [][]string
	RowColor []RowColor
}

// RowColor colors the given columns of one row.
type RowColor struct {
	row    int
	column []int
	color  []tablewriter.Colors
}

func NewVisualTable(header []string) *VisualTable {
	return &VisualTable{Header: header}
}

// AddRow appends a row whose statusColumn is colored after its value.
func (v *VisualTable) AddRow(data []string, statusColumn int) {
	if c, ok := statusColors[data[statusColumn]]; ok {
		v.RowColor = append(v.RowColor, RowColor{
			row:    len(v.Data),
			column: []int{statusColumn},
			color:  []tablewriter.Colors{c},
		})
	}
	v.Data = append(v.Data, data)
}

var statusColors = map[string]tablewriter.Colors{
	constants.StatusActive:         {tablewriter.Bold, tablewriter.FgGreenColor},
	constants.StatusOffline:        {tablewriter.Bold, tablewriter.FgYellowColor},
	constants.StatusRemoved:        {tablewriter.Bold, tablewriter.FgRedColor},
	string(models.BountyPending):   {tablewriter.Bold, tablewriter.FgYellowColor},
	string(models.BountySuccess):   {tablewriter.Bold, tablewriter.FgGreenColor},
	string(models.BountyFailed):    {tablewriter.Bold, tablewriter.FgRedColor},
	string(models.BountyCancelled): {tablewriter.Bold, tablewriter.FgWhiteColor},
}

func (v *VisualTable) Generate() {
	table := tablewriter.NewWriter(os.Stdout)

	for index, datum := range v.Data {
		var rowColors []tablewriter.Colors
		for _, rowColor := range v.RowColor {
			if index != rowColor.row {
				continue
			}
			for dIndex := range datum {
				c := tablewriter.Colors{}
				for n, colIndex := range rowColor.column {
					if dIndex == colIndex {
						c = rowColor.color[n]
					}
				}
				rowColors = append(rowColors, c)
			}
		}
		table.Rich(datum, rowColors)
	}

	table.SetHeader(v.Header)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetBorder(false)
	table.SetTablePadding("\t")
	table.SetNoWhiteSpace(true)
	table.Render()
}

func nodeStatus(n *models.Node) string {
	switch {
	case n.Removed:
		return constants.StatusRemoved
	case n.Offline:
		return constants.StatusOffline
	}
	return constants.StatusActive
}
