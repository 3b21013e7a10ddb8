package utils

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	logger "github.com/sirupsen/logrus"
)

// LogWriter holds the log file handle so it can be flushed/closed on shutdown.
type LogWriter struct {
	file *os.File
}

func (lw *LogWriter) Dispose() {
	if lw.file != nil {
		lw.file.Close()
	}
}

// InitLogger configures the standard logrus logger from the logging config
// and returns a disposable writer plus the root log entry.
func InitLogger() (*LogWriter, *logger.Entry) {
	logWriter := &LogWriter{}

	if Config.Logging.OutputStderr {
		logger.SetOutput(os.Stderr)
	}

	if Config.Logging.OutputLevel != "" {
		level, err := logger.ParseLevel(Config.Logging.OutputLevel)
		if err != nil {
			logger.Errorf("invalid log level %v, using info", Config.Logging.OutputLevel)
		} else {
			logger.SetLevel(level)
		}
	}

	if Config.Logging.FilePath != "" {
		file, err := os.OpenFile(Config.Logging.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			logger.Errorf("error opening log file %v: %v", Config.Logging.FilePath, err)
		} else {
			logWriter.file = file

			fileLevel := logger.GetLevel()
			if Config.Logging.FileLevel != "" {
				level, err := logger.ParseLevel(Config.Logging.FileLevel)
				if err == nil {
					fileLevel = level
				}
			}

			logger.AddHook(&fileLogHook{
				writer: file,
				level:  fileLevel,
				fmt:    &logger.TextFormatter{DisableColors: true},
			})
		}
	}

	return logWriter, logger.NewEntry(logger.StandardLogger())
}

type fileLogHook struct {
	writer io.Writer
	level  logger.Level
	fmt    logger.Formatter
}

func (h *fileLogHook) Levels() []logger.Level {
	levels := []logger.Level{}
	for _, level := range logger.AllLevels {
		if level <= h.level {
			levels = append(levels, level)
		}
	}
	return levels
}

func (h *fileLogHook) Fire(entry *logger.Entry) error {
	line, err := h.fmt.Format(entry)
	if err != nil {
		return err
	}
	_, err = h.writer.Write(line)
	return err
}

// LogFatal logs a fatal error with callstack info that skips callerSkip many levels with arbitrarily many additional infos.
// callerSkip equal to 0 gives you info directly where LogFatal is called.
func LogFatal(err error, errorMsg interface{}, callerSkip int, additionalInfos ...map[string]interface{}) {
	logErrorInfo(err, callerSkip, additionalInfos...).Fatal(errorMsg)
}

// LogError logs an error with callstack info that skips callerSkip many levels with arbitrarily many additional infos.
// callerSkip equal to 0 gives you info directly where LogError is called.
func LogError(err error, errorMsg interface{}, callerSkip int, additionalInfos ...map[string]interface{}) {
	logErrorInfo(err, callerSkip, additionalInfos...).Error(errorMsg)
}

func logErrorInfo(err error, callerSkip int, additionalInfos ...map[string]interface{}) *logger.Entry {
	logFields := logger.NewEntry(logger.StandardLogger())

	pc, fullFilePath, line, ok := runtime.Caller(callerSkip + 2)
	if ok {
		logFields = logFields.WithFields(logger.Fields{
			"_file":     filepath.Base(fullFilePath),
			"_function": runtime.FuncForPC(pc).Name(),
			"_line":     line,
		})
	} else {
		logFields = logFields.WithField("runtime", "Callstack cannot be read")
	}

	errIdx := 0
	for err != nil {
		logFields = logFields.WithField(fmt.Sprintf("errInfo_%v", errIdx), fmt.Sprint(err))
		err = errors.Unwrap(err)
		errIdx++
	}

	for _, infoMap := range additionalInfos {
		for name, info := range infoMap {
			logFields = logFields.WithField(name, info)
		}
	}

	return logFields
}
