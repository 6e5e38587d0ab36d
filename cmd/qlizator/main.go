package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	qlizator "github.com/Outernet-Project/qlizator-go"
	"github.com/Outernet-Project/qlizator-go/internal/pkg/logging"
	"github.com/Outernet-Project/qlizator-go/internal/protocol"
)

const (
	cliName string = "qlizator"
)

var dsnFlag string

// rootCmd starts an interactive session against the server when called
// without a subcommand.
var rootCmd = &cobra.Command{
	Use:           cliName,
	Short:         "Client for a qlizator remote SQL server",
	Long:          `qlizator connects to a qlizator SQL-execution server over TCP and runs statements against the attached database, either interactively or one-shot.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := sqlx.Open("qlizator", dsnFlag)
		if err != nil {
			return err
		}
		defer db.Close()

		return repl(db)
	},
}

var queryCmd = &cobra.Command{
	Use:   "query <sql>",
	Short: "Run a single statement and print the fetched rows",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := sqlx.Open("qlizator", dsnFlag)
		if err != nil {
			return err
		}
		defer db.Close()

		return runQuery(db, args[0])
	},
}

var execCmd = &cobra.Command{
	Use:   "exec <sql>",
	Short: "Run a single statement without fetching rows",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := sqlx.Open("qlizator", dsnFlag)
		if err != nil {
			return err
		}
		defer db.Close()

		return runExec(db, args[0])
	},
}

var dropCmd = &cobra.Command{
	Use:   "drop",
	Short: "Delete the database on the server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := qlizator.ParseConnectionString(dsnFlag)
		if err != nil {
			return err
		}
		level, err := logging.ParseLevel(config.LogLevel)
		if err != nil {
			return err
		}
		logger, err := logging.New(level)
		if err != nil {
			return err
		}

		conn, err := protocol.Connect(protocol.Config{
			Addr:     config.Addr(),
			Database: config.Database,
			Path:     config.Path,
			Timeout:  config.Timeout,
			Logger:   logger,
		})
		if err != nil {
			return err
		}
		defer func() {
			if !conn.Closed() {
				_ = conn.Close()
			}
		}()

		if err := conn.DropDatabase(); err != nil {
			return err
		}
		pterm.Success.Printfln("Database %q dropped", config.Database)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dsnFlag, "dsn", "",
		"connection string, e.g. qlizator://localhost:8080/main?path=/srv/main.sqlite")
	_ = rootCmd.MarkPersistentFlagRequired("dsn")

	rootCmd.AddCommand(queryCmd, execCmd, dropCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}
}

func printPrompt() {
	fmt.Print(cliName, "> ")
}

func repl(db *sqlx.DB) error {
	reader := bufio.NewReader(os.Stdin)

	for {
		printPrompt()
		line, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				fmt.Println()
				return nil
			}
			return err
		}

		input := strings.TrimSpace(line)
		switch input {
		case "":
			continue
		case ".help":
			fmt.Println(".help    - Show available commands")
			fmt.Println(".exit    - Closes program")
			continue
		case ".exit":
			fmt.Println("Goodbye!")
			return nil
		}

		statement := strings.TrimSuffix(input, ";")
		if isFetch(statement) {
			err = runQuery(db, statement)
		} else {
			err = runExec(db, statement)
		}
		if err != nil {
			pterm.Error.Println(err)
		}
	}
}

// isFetch decides whether a statement should stream rows back. The server
// distinguishes execute from execute-and-fetch, so the client has to pick
// one before sending.
func isFetch(statement string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(statement)), "select")
}

func runQuery(db *sqlx.DB, query string) error {
	rows, err := db.Queryx(query)
	if err != nil {
		return err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return err
	}

	tableData := pterm.TableData{columns}
	count := 0
	for rows.Next() {
		aRow := make(map[string]any)
		if err := rows.MapScan(aRow); err != nil {
			return err
		}
		cells := make([]string, 0, len(columns))
		for _, name := range columns {
			cells = append(cells, formatValue(aRow[name]))
		}
		tableData = append(tableData, cells)
		count++
	}
	if err := rows.Err(); err != nil {
		return err
	}

	if len(columns) > 0 {
		if err := pterm.DefaultTable.WithHasHeader().WithData(tableData).Render(); err != nil {
			return err
		}
	}
	fmt.Printf("%d row(s)\n", count)
	return nil
}

func runExec(db *sqlx.DB, statement string) error {
	if _, err := db.Exec(statement); err != nil {
		return err
	}
	fmt.Println("OK")
	return nil
}

func formatValue(v any) string {
	switch value := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(value)
	default:
		return fmt.Sprint(value)
	}
}
