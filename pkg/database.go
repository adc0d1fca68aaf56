package lstio

import (
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	sqlx "github.com/jmoiron/sqlx"
)

// ConnectToDatabase opens the camera configuration database.
func ConnectToDatabase(user string, pass string, host string, dbname string) (*sqlx.DB, error) {
	port := "3306"
	dbURI := fmt.Sprintf("%s:%s@(%s:%s)/%s?parseTime=true", user, pass, host, port, dbname)
	db, err := sqlx.Connect("mysql", dbURI)
	return db, err
}

type pixelGeometryEntry struct {
	PixelID  int     `db:"PixelID"`
	ModuleID int     `db:"ModuleID"`
	PosX     float64 `db:"PosX"`
	PosY     float64 `db:"PosY"`
}

// getCameraGeometryFromDB reads the pixel positions valid for the given
// run.
func getCameraGeometryFromDB(db *sqlx.DB, runNumber int) (*CameraGeometry, error) {
	query := "SELECT PixelID, ModuleID, PosX, PosY FROM PixelGeometry WHERE MinRun <= %d and MaxRun >= %d ORDER BY PixelID"
	query = fmt.Sprintf(query, runNumber, runNumber)

	if configuration.Verbosity > 0 {
		logger.Info("Camera geometry read from DB", "database")
	}
	if configuration.Verbosity > 2 {
		message := fmt.Sprintf("Query: %s", query)
		logger.Info(message, "database")
	}

	rows, err := db.Queryx(query)
	if err != nil {
		errMessage := fmt.Errorf("error querying database: %w", err)
		return nil, errMessage
	}

	geometry := newCameraGeometry()
	nRows := 0
	for rows.Next() {
		result := pixelGeometryEntry{}
		err := rows.StructScan(&result)
		if err != nil {
			errMessage := fmt.Errorf("error scanning DB row: %w", err)
			return nil, errMessage
		}
		if result.PixelID < 0 || result.PixelID >= NPixels {
			continue
		}
		geometry.PixXM[result.PixelID] = result.PosX
		geometry.PixYM[result.PixelID] = result.PosY
		geometry.ModuleID[result.PixelID] = result.ModuleID
		nRows++
	}
	if nRows != NPixels {
		return nil, ErrShapeMismatch{
			What:     "camera geometry rows",
			Expected: fmt.Sprint(NPixels),
			Got:      fmt.Sprint(nRows),
		}
	}
	return geometry, nil
}

// LoadCameraGeometry reads the pixel geometry from the database, or from
// the configured file when running without database access.
func LoadCameraGeometry(runNumber int) (*CameraGeometry, error) {
	cfg := GetConfiguration()
	if cfg.NoDB {
		return readCameraGeometryFile(cfg.CameraGeometryPath)
	}
	db, err := ConnectToDatabase(cfg.User, cfg.Passwd, cfg.Host, cfg.DBName)
	if err != nil {
		errMessage := fmt.Errorf("error connecting to database: %w", err)
		logger.Error(errMessage.Error())
		return nil, errMessage
	}
	defer db.Close()
	return getCameraGeometryFromDB(db, runNumber)
}
