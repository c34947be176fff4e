package connection

import (
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"

	// database/sql drivers
	_ "github.com/denisenkom/go-mssqldb"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"titan/internal/models"
)

// driverSpec knows how to reach one kind of database through database/sql
type driverSpec struct {
	sqlName      string
	defaultPort  int
	versionQuery string
	dsn          func(p *models.ConnectionProfile, timeout time.Duration) string
}

var drivers = map[string]driverSpec{
	models.DriverPostgres: {
		sqlName:      "pgx",
		defaultPort:  5432,
		versionQuery: "SELECT version()",
		dsn:          postgresDSN,
	},
	models.DriverMySQL: {
		sqlName:      "mysql",
		defaultPort:  3306,
		versionQuery: "SELECT VERSION()",
		dsn:          mysqlDSN,
	},
	models.DriverSQLServer: {
		sqlName:      "sqlserver",
		defaultPort:  1433,
		versionQuery: "SELECT @@VERSION",
		dsn:          sqlserverDSN,
	},
	models.DriverSQLite: {
		sqlName:      "sqlite",
		versionQuery: "SELECT sqlite_version()",
		dsn: func(p *models.ConnectionProfile, _ time.Duration) string {
			return p.Database
		},
	},
}

// SupportedDrivers lists the driver names a profile may use
func SupportedDrivers() []string {
	return []string{models.DriverPostgres, models.DriverMySQL, models.DriverSQLServer, models.DriverSQLite}
}

func lookupDriver(name string) (driverSpec, bool) {
	if name == "" {
		name = models.DriverPostgres
	}
	spec, ok := drivers[name]
	return spec, ok
}

func hostPort(p *models.ConnectionProfile, defaultPort int) string {
	port := p.Port
	if port == 0 {
		port = defaultPort
	}
	return net.JoinHostPort(p.Host, strconv.Itoa(port))
}

func postgresDSN(p *models.ConnectionProfile, timeout time.Duration) string {
	sslMode := p.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	q := url.Values{}
	q.Set("sslmode", sslMode)
	q.Set("application_name", "titan")
	if secs := int(timeout.Seconds()); secs > 0 {
		q.Set("connect_timeout", strconv.Itoa(secs))
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(p.User.Username, p.Password),
		Host:     hostPort(p, 5432),
		Path:     "/" + p.Database,
		RawQuery: q.Encode(),
	}
	return u.String()
}

func mysqlDSN(p *models.ConnectionProfile, timeout time.Duration) string {
	cfg := mysql.NewConfig()
	cfg.User = p.User.Username
	cfg.Passwd = p.Password
	cfg.Net = "tcp"
	cfg.Addr = hostPort(p, 3306)
	cfg.DBName = p.Database
	cfg.Timeout = timeout
	cfg.ParseTime = true
	if p.SSLMode != "" && p.SSLMode != "disable" {
		cfg.TLSConfig = "true"
	}
	return cfg.FormatDSN()
}

func sqlserverDSN(p *models.ConnectionProfile, timeout time.Duration) string {
	q := url.Values{}
	if p.Database != "" {
		q.Set("database", p.Database)
	}
	if secs := int(timeout.Seconds()); secs > 0 {
		q.Set("dial timeout", strconv.Itoa(secs))
	}
	q.Set("app name", "titan")
	u := url.URL{
		Scheme:   "sqlserver",
		User:     url.UserPassword(p.User.Username, p.Password),
		Host:     hostPort(p, 1433),
		RawQuery: q.Encode(),
	}
	return u.String()
}

// address is where the profile points, for errors and logs
func address(p *models.ConnectionProfile, spec driverSpec) string {
	if spec.defaultPort == 0 {
		return p.Database
	}
	return hostPort(p, spec.defaultPort)
}
