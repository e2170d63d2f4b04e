package utils

//BallClass is the enum represents an object detected as a ball
const BallClass = 0

//HoopClass is the enum represents an object detected as a hoop
const HoopClass = 1

//TrainSplit is the name of the training partition directory
const TrainSplit = "train"

//ValSplit is the name of the validation partition directory
const ValSplit = "val"

//TestSplit is the name of the test partition directory
const TestSplit = "test"

//SplitNames is the ordered list of dataset partitions
var SplitNames = []string{TrainSplit, ValSplit, TestSplit}

//BallDetectedDir is the folder name images with a detected ball are moved into
const BallDetectedDir = "Ball_detected"

//NoBallDetectedDir is the folder name images without a detected ball are moved into
const NoBallDetectedDir = "No_ball_detected"

//VideoExtensions is a list of video file extensions the pipeline will pick up
var VideoExtensions = []string{".mp4", ".avi", ".mov", ".mkv", ".flv", ".wmv"}

//ImageExtensions is a list of image file extensions the pipeline will pick up
var ImageExtensions = []string{".jpg", ".jpeg", ".png", ".bmp"}

//BallKeywords are the class name substrings which count as a ball detection
var BallKeywords = []string{"ball", "basket"}

//AnnotationExtension is the extension of YOLO label files
const AnnotationExtension = ".txt"

//DefaultClassNames are the classes written to data.yaml when config has none
var DefaultClassNames = []string{"basketball", "hoop"}
